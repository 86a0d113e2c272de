package main

import (
	"fmt"
	"io"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
)

// progressPrinter renders indexing progress on a terminal. Fetch events for
// the same page overwrite one line; everything else gets its own line.
type progressPrinter struct {
	w       io.Writer
	inline  bool
	verbose bool
}

var _ port.Notifier = (*progressPrinter)(nil)

func (p *progressPrinter) Started(page int) {
	fmt.Fprintf(p.w, "Indexing page %d\n", page)
}

func (p *progressPrinter) Progress(ev domain.ProgressEvent) {
	switch ev.Phase {
	case domain.PhaseFetching:
		fmt.Fprintf(p.w, "\r  fetching %d/%d %-50s", ev.Current, ev.Total, truncate(ev.Label, 50))
		p.inline = true
	default:
		p.endLine()
		fmt.Fprintf(p.w, "  %s", ev.Label)
		if p.verbose && ev.Detail != "" {
			fmt.Fprintf(p.w, " (%s)", ev.Detail)
		}
		fmt.Fprintln(p.w)
	}
}

func (p *progressPrinter) Finished(res domain.RunResult) {
	p.endLine()
	switch {
	case res.ShortCircuited:
		fmt.Fprintf(p.w, "Index already populated: %d of %d indexed\n", res.Indexed, res.Total)
	default:
		fmt.Fprintf(p.w, "Indexed %d of %d", res.Indexed, res.Total)
		if n := res.ContentFailures + res.EmbeddingFailures; n > 0 {
			fmt.Fprintf(p.w, " (%d readme failures, %d embedding failures)", res.ContentFailures, res.EmbeddingFailures)
		}
		fmt.Fprintln(p.w)
	}
	if res.HasMore() {
		fmt.Fprintf(p.w, "Next page: %d\n", res.NextPage)
	}
}

func (p *progressPrinter) Failed(page int, err error) {
	p.endLine()
	fmt.Fprintf(p.w, "Page %d failed: %v\n", page, err)
}

func (p *progressPrinter) endLine() {
	if p.inline {
		fmt.Fprintln(p.w)
		p.inline = false
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
