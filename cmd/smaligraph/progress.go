package main

import (
	"fmt"
	"os"
	"time"

	"smaligraph/graph"
)

// Progress reports pipeline progress to stderr with elapsed time.
type Progress struct {
	start   time.Time
	verbose bool
}

// NewProgress creates a progress reporter.
func NewProgress(verbose bool) *Progress {
	return &Progress{start: time.Now(), verbose: verbose}
}

// Log prints a progress message with elapsed time prefix.
func (p *Progress) Log(format string, args ...any) {
	elapsed := time.Since(p.start)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "[%02d:%02d] %s\n", mins, secs, msg)
}

// Verbose prints only when verbose mode is enabled.
func (p *Progress) Verbose(format string, args ...any) {
	if p.verbose {
		p.Log(format, args...)
	}
}

// Watch drains ingestion events in the background until the sink closes,
// printing a summary line every interval artifacts. The returned channel
// closes when the event stream does.
func (p *Progress) Watch(events <-chan graph.Event) <-chan struct{} {
	const interval = 500
	done := make(chan struct{})
	go func() {
		defer close(done)
		n := 0
		for ev := range events {
			n++
			p.Verbose("%s: %s", ev.Source, ev.Artifact)
			if n%interval == 0 {
				p.Log("%s: %d artifacts processed (%d skipped)", ev.Source, n, ev.Skipped)
			}
		}
	}()
	return done
}
