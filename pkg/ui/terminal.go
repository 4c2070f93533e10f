package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/arthur-debert/prefixer/pkg/reporter"
	"github.com/arthur-debert/prefixer/pkg/transaction"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/pterm/pterm"
)

// TerminalReporter shows install progress. On a color terminal it drives a
// pterm progress bar over the transaction's operations and prints the
// package lines once the bar is done; otherwise each line is printed as
// soon as its package is linked or unlinked.
type TerminalReporter struct {
	reporter.Nop

	out    io.Writer
	styles Styles
	live   bool

	mu      sync.Mutex
	next    int
	records map[int]string
	changed map[int]bool
	lines   []string
	bar     *pterm.ProgressbarPrinter
}

// NewTerminalReporter writes progress to out in the given format. JSON and
// auto are treated like their resolved text forms.
func NewTerminalReporter(out io.Writer, format Format) *TerminalReporter {
	live := format.Resolve(out) == FormatTerminal
	return &TerminalReporter{
		out:     out,
		styles:  NewStyles(out, live),
		live:    live,
		records: make(map[int]string),
		changed: make(map[int]bool),
	}
}

func (r *TerminalReporter) OnTransactionStart(tx *transaction.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, op := range tx.Operations {
		if op.Remove != nil && op.Install != nil {
			r.changed[i] = true
		}
	}
	if !r.live || len(tx.Operations) == 0 {
		return
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(len(tx.Operations)).
		WithTitle("Installing").
		WithWriter(r.out).
		WithRemoveWhenDone(true).
		Start()
	if err == nil {
		r.bar = bar
	}
}

func (r *TerminalReporter) OnTransactionOperationComplete(int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		r.bar.Increment()
	}
}

func (r *TerminalReporter) OnUnlinkStart(operation int, record *types.PrefixRecord) int {
	return r.begin(operation, record.Name, record.Version, false)
}

func (r *TerminalReporter) OnUnlinkComplete(index int) { r.done(index) }

func (r *TerminalReporter) OnLinkStart(operation int, record *types.RepoDataRecord) int {
	return r.begin(operation, record.Name, record.Version, true)
}

func (r *TerminalReporter) OnLinkComplete(index int) { r.done(index) }

func (r *TerminalReporter) OnTransactionComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_, _ = r.bar.Stop()
		r.bar = nil
		for _, line := range r.lines {
			fmt.Fprintln(r.out, line)
		}
	}
	r.lines = nil
}

func (r *TerminalReporter) begin(operation int, name, version string, install bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var line string
	switch {
	case r.changed[operation] && install:
		line = r.styles.Changed.Render("~") + " " + r.styles.Package.Render(name) + " " + r.styles.Version.Render(version)
	case r.changed[operation]:
		// The install half reports the change.
		line = ""
	case install:
		line = r.styles.Added.Render("+") + " " + r.styles.Package.Render(name) + " " + r.styles.Version.Render(version)
	default:
		line = r.styles.Removed.Render("-") + " " + r.styles.Package.Render(name) + " " + r.styles.Version.Render(version)
	}

	idx := r.next
	r.next++
	r.records[idx] = line
	if r.bar != nil {
		r.bar.UpdateTitle(name)
	}
	return idx
}

func (r *TerminalReporter) done(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := r.records[idx]
	delete(r.records, idx)
	if line == "" {
		return
	}
	if r.bar != nil {
		r.lines = append(r.lines, line)
		return
	}
	fmt.Fprintln(r.out, line)
}
