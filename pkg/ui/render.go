package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/arthur-debert/prefixer/pkg/clobber"
	"github.com/arthur-debert/prefixer/pkg/linkscript"
	"github.com/arthur-debert/prefixer/pkg/transaction"
	"github.com/arthur-debert/prefixer/pkg/types"
	"github.com/charmbracelet/glamour"
)

// Printer renders command output in one format.
type Printer struct {
	out    io.Writer
	format Format
	styles Styles
}

// NewPrinter resolves format against out.
func NewPrinter(out io.Writer, format Format) *Printer {
	format = format.Resolve(out)
	return &Printer{out: out, format: format, styles: NewStyles(out, format == FormatTerminal)}
}

// Format is the resolved output format.
func (p *Printer) Format() Format { return p.format }

type operationJSON struct {
	Name    string `json:"name"`
	Remove  string `json:"remove,omitempty"`
	Install string `json:"install,omitempty"`
}

// Transaction prints what a transaction would do.
func (p *Printer) Transaction(tx *transaction.Transaction) error {
	if p.format == FormatJSON {
		ops := make([]operationJSON, 0, len(tx.Operations))
		for _, op := range tx.Operations {
			o := operationJSON{Name: op.Name()}
			if r := op.RecordToRemove(); r != nil {
				o.Remove = r.Version
			}
			if r := op.RecordToInstall(); r != nil {
				o.Install = r.Version
			}
			ops = append(ops, o)
		}
		return p.json(map[string]interface{}{"operations": ops, "unchanged": tx.UnchangedPackages()})
	}

	if len(tx.Operations) == 0 {
		_, err := fmt.Fprintln(p.out, p.styles.Muted.Render("Nothing to do."))
		return err
	}
	for _, op := range tx.Operations {
		remove, install := op.RecordToRemove(), op.RecordToInstall()
		var line string
		switch {
		case remove != nil && install != nil:
			line = fmt.Sprintf("%s %s %s -> %s", p.styles.Changed.Render("~"), p.styles.Package.Render(op.Name()),
				p.styles.Version.Render(remove.Version), p.styles.Version.Render(install.Version))
		case install != nil:
			line = fmt.Sprintf("%s %s %s", p.styles.Added.Render("+"), p.styles.Package.Render(op.Name()), p.styles.Version.Render(install.Version))
		default:
			line = fmt.Sprintf("%s %s %s", p.styles.Removed.Render("-"), p.styles.Package.Render(op.Name()), p.styles.Version.Render(remove.Version))
		}
		if _, err := fmt.Fprintln(p.out, line); err != nil {
			return err
		}
	}
	return nil
}

// Outcome prints clobbered paths and link script output after an install.
func (p *Printer) Outcome(clobbered map[string]clobber.ClobberedPath, scripts ...*linkscript.Result) error {
	if p.format == FormatJSON {
		return p.json(map[string]interface{}{"clobbered_paths": clobbered})
	}

	paths := make([]string, 0, len(clobbered))
	for path := range clobbered {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		c := clobbered[path]
		fmt.Fprintf(p.out, "%s %s is provided by %s (also in %s)\n",
			p.styles.Warning.Render("!"), path, c.Package, strings.Join(c.OtherPackages, ", "))
	}

	for _, s := range scripts {
		if s == nil {
			continue
		}
		names := make([]string, 0, len(s.Messages))
		for name := range s.Messages {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(p.out, "%s\n%s", p.styles.Package.Render(name+":"), s.Messages[name])
		}
		for _, name := range s.FailedPackages {
			fmt.Fprintf(p.out, "%s link script of %s failed\n", p.styles.Error.Render("x"), name)
		}
	}
	return nil
}

type recordJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Build   string `json:"build"`
	Channel string `json:"channel,omitempty"`
	Files   int    `json:"files"`

	// Original paths of files this package lost to another one and kept
	// under a renamed copy.
	Clobbered []string `json:"clobbered,omitempty"`
}

// clobberedFiles returns the original paths behind the renamed copies
// among r's files.
func clobberedFiles(r types.PrefixRecord) []string {
	var originals []string
	for _, f := range r.Files {
		if original, _, ok := clobber.IsClobberPath(f); ok {
			originals = append(originals, original)
		}
	}
	return originals
}

// Records lists installed packages. With markdown set on a terminal the
// table is rendered through glamour.
func (p *Printer) Records(records []types.PrefixRecord, markdown bool) error {
	if p.format == FormatJSON {
		out := make([]recordJSON, 0, len(records))
		for _, r := range records {
			out = append(out, recordJSON{
				Name:      r.Name,
				Version:   r.Version,
				Build:     r.Build,
				Channel:   r.Channel,
				Files:     len(r.Files),
				Clobbered: clobberedFiles(r),
			})
		}
		return p.json(out)
	}

	if markdown {
		table := MarkdownTable(records)
		if p.format == FormatTerminal {
			rendered, err := renderMarkdown(table)
			if err == nil {
				table = rendered
			}
		}
		_, err := io.WriteString(p.out, table)
		return err
	}

	for _, r := range records {
		fmt.Fprintf(p.out, "%s %s %s", p.styles.Package.Render(r.Name), r.Version, p.styles.Version.Render(r.Build))
		if n := len(clobberedFiles(r)); n > 0 {
			fmt.Fprintf(p.out, " (%d clobbered)", n)
		}
		fmt.Fprintln(p.out)
	}
	return nil
}

// MarkdownTable formats records as a markdown table.
func MarkdownTable(records []types.PrefixRecord) string {
	var b strings.Builder
	b.WriteString("| Name | Version | Build | Channel |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, r := range records {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", r.Name, r.Version, r.Build, r.Channel)
	}
	return b.String()
}

func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

func (p *Printer) json(v interface{}) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
