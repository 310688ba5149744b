package download

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// NewTerminalProgress returns a ProgressFactory backed by mpb when stdout
// is an interactive terminal, and nil otherwise — a long-running agent is
// almost always non-interactive, in which case progress reporting is a
// no-op, exactly as the teacher's NewProgressContainer gates on isatty.
func NewTerminalProgress() ProgressFactory {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return nil
	}

	p := mpb.New(mpb.WithWidth(64))

	return func(name string) (io.Writer, func()) {
		bar := p.AddBar(0,
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{W: len(name) + 4}),
				decor.CountersKibiByte("% .2f / % .2f", decor.WC{W: 18}),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.Spinner(nil, decor.WC{W: 5}), " [done]"),
			),
		)
		return &barWriter{bar: bar}, func() { bar.SetTotal(-1, true) }
	}
}

// barWriter adapts an mpb.Bar to io.Writer so it can sit in the fetcher's
// multi-writer pipeline alongside the tempfile and digest verifier.
type barWriter struct {
	bar *mpb.Bar
}

func (w *barWriter) Write(p []byte) (int, error) {
	w.bar.IncrBy(len(p))
	return len(p), nil
}
