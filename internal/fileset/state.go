package fileset

// State is the mutable aggregate of a destination directory's view of one
// fileset: what is on disk, what the publisher currently lists, and what is
// queued for unlink. See SPEC_FULL.md §3 for the invariants it maintains.
type State struct {
	Prefix    string
	Extension string
	Minimal   bool // minimal-manifest mode vs. full mode, per §4.3/§4.4

	AllLocal         Set
	MinimalLocal     Set
	Remote           Set
	PendingDeletions Set
}

func NewState(prefix, extension string, minimal bool) *State {
	return &State{
		Prefix:           prefix,
		Extension:        extension,
		Minimal:          minimal,
		AllLocal:         NewSet(),
		MinimalLocal:     NewSet(),
		Remote:           NewSet(),
		PendingDeletions: NewSet(),
	}
}

// MissingFiles returns remote \ all_local: files the publisher lists that
// are not yet present on disk (by any name, not just in the minimal view).
func (st *State) MissingFiles() Set {
	return st.Remote.Difference(st.AllLocal)
}

// PruneObsolete implements SPEC_FULL.md §4.3's "obsolete" rule:
//
//	(L \ R) \ O(U)     where L = minimal_local, R = remote, U = L ∪ R
//
// In full (non-minimal) mode it additionally deletes O(L) \ O(R): buckets
// that became redundant only because a newer coarser bucket arrived but
// that the remote view does not itself cover, preserving the invariant
// that the full manifest holds every remote file plus any locally-retained
// ancestors.
func (st *State) PruneObsolete() {
	L := st.MinimalLocal
	R := st.Remote
	U := L.Union(R)

	obsolete := L.Difference(R).Difference(Overlap(U))

	if !st.Minimal {
		extra := Overlap(L).Difference(Overlap(R))
		obsolete = obsolete.Union(extra)
	}

	// Obsolete members are physically deleted regardless of mode: they
	// are gone from the remote manifest (or redundant under it) and
	// nothing local still needs them.
	st.PendingDeletions.Update(obsolete)
	st.MinimalLocal.Subtract(obsolete)
	st.AllLocal.Subtract(obsolete)
}

// PruneRedundant implements SPEC_FULL.md §4.3's "redundant" rule: O(L) is
// always removed from minimal_local. In minimal mode redundant files are
// also removed from all_local and scheduled for deletion; in full mode
// they remain in all_local and on disk. Idempotent: a second call finds
// nothing left to overlap since MinimalLocal no longer contains the
// redundant members.
func (st *State) PruneRedundant() {
	redundant := Overlap(st.MinimalLocal)

	st.MinimalLocal.Subtract(redundant)

	if st.Minimal {
		st.PendingDeletions.Update(redundant)
		st.AllLocal.Subtract(redundant)
	}
}

// ManifestTarget returns the set of names that belong in the on-disk
// manifest for the given mode, per invariant I4.
func (st *State) ManifestTarget(minimal bool) Set {
	if minimal {
		return st.MinimalLocal
	}
	return st.AllLocal
}
