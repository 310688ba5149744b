package fileset

import "time"

// Overlap yields every descriptor in s that is covered by some strictly
// coarser descriptor also in s, per SPEC_FULL.md §4.1. The algorithm walks
// s in the total order (coarsest first), keeping a per-granularity set of
// the calendar buckets seen so far; a finer descriptor is overlapped when
// its timestamp falls inside any coarser bucket already recorded.
//
// Calendar covering is computed as fixed integer comparisons on
// year/month/day/hour/minute components, never on intervals of instants,
// so neither DST nor timezone enters into it. Week buckets align to
// day-of-month 1/8/15/22; ten-minute buckets align to minute 0/10/.../50.
//
// The quarter bucket is a first-class coarser-than-month bucket: a month is
// overlapped by a quarter containing it, exactly as a day is overlapped by
// a week containing it. The original implementation this is modeled on has
// a duplicated `M` case that shadows the quarter branch so quarters are
// populated but never consulted; that is treated here as a bug, not
// intent, and corrected.
func Overlap(s Set) Set {
	var (
		years      = map[yearKey]bool{}
		quarters   = map[quarterKey]bool{}
		months     = map[monthKey]bool{}
		weeks      = map[weekKey]bool{}
		days       = map[dayKey]bool{}
		hours      = map[hourKey]bool{}
		tenMinutes = map[tenMinuteKey]bool{}
	)

	yearOverlap := func(d Descriptor) bool {
		return years[yearOf(d.Timestamp)]
	}
	quarterOverlap := func(d Descriptor) bool {
		if yearOverlap(d) {
			return true
		}
		return quarters[quarterOf(d.Timestamp)]
	}
	monthOverlap := func(d Descriptor) bool {
		if quarterOverlap(d) {
			return true
		}
		return months[monthOf(d.Timestamp)]
	}
	weekOverlap := func(d Descriptor) bool {
		if monthOverlap(d) {
			return true
		}
		return weeks[weekOf(d.Timestamp)]
	}
	dayOverlap := func(d Descriptor) bool {
		if weekOverlap(d) {
			return true
		}
		return days[dayOf(d.Timestamp)]
	}
	hourOverlap := func(d Descriptor) bool {
		if dayOverlap(d) {
			return true
		}
		return hours[hourOf(d.Timestamp)]
	}
	tenMinuteOverlap := func(d Descriptor) bool {
		if hourOverlap(d) {
			return true
		}
		return tenMinutes[tenMinuteOf(d.Timestamp)]
	}

	out := make(Set)
	for _, d := range Sorted(s) {
		switch d.Granularity {
		case Year:
			years[yearOf(d.Timestamp)] = true
		case Quarter:
			if yearOverlap(d) {
				out.Add(d)
			} else {
				quarters[quarterOf(d.Timestamp)] = true
			}
		case Month:
			if quarterOverlap(d) {
				out.Add(d)
			} else {
				months[monthOf(d.Timestamp)] = true
			}
		case Week:
			if monthOverlap(d) {
				out.Add(d)
			} else {
				weeks[weekOf(d.Timestamp)] = true
			}
		case Day:
			if weekOverlap(d) {
				out.Add(d)
			} else {
				days[dayOf(d.Timestamp)] = true
			}
		case Hour:
			if dayOverlap(d) {
				out.Add(d)
			} else {
				hours[hourOf(d.Timestamp)] = true
			}
		case TenMinute:
			if hourOverlap(d) {
				out.Add(d)
			} else {
				tenMinutes[tenMinuteOf(d.Timestamp)] = true
			}
		case Minute:
			if tenMinuteOverlap(d) {
				out.Add(d)
			}
			// minute is the finest granularity; it never gets inserted
			// into a bucket set since nothing is finer than it.
		}
	}
	return out
}

type yearKey struct{ y int }
type quarterKey struct{ y, q int }
type monthKey struct{ y, m int }
type weekKey struct{ y, m, wd int } // wd: aligned week-start day-of-month
type dayKey struct{ y, m, d int }
type hourKey struct{ y, m, d, h int }
type tenMinuteKey struct{ y, m, d, h, tm int }

func yearOf(t time.Time) yearKey {
	return yearKey{t.Year()}
}

func quarterOf(t time.Time) quarterKey {
	y, m, _ := t.Date()
	q := (int(m)-1)/3*3 + 1
	return quarterKey{y, q}
}

func monthOf(t time.Time) monthKey {
	y, m, _ := t.Date()
	return monthKey{y, int(m)}
}

func weekOf(t time.Time) weekKey {
	y, m, d := t.Date()
	wd := (d-1)/7*7 + 1
	return weekKey{y, int(m), wd}
}

func dayOf(t time.Time) dayKey {
	y, m, d := t.Date()
	return dayKey{y, int(m), d}
}

func hourOf(t time.Time) hourKey {
	y, m, d := t.Date()
	return hourKey{y, int(m), d, t.Hour()}
}

func tenMinuteOf(t time.Time) tenMinuteKey {
	y, m, d := t.Date()
	return tenMinuteKey{y, int(m), d, t.Hour(), t.Minute() / 10 * 10}
}
