package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"pkgdb/internal/model"
)

// MarkdownWriter outputs records in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent
// markdown generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given
// writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// WritePackages outputs a search result table plus a per-system
// distribution chart.
func (w *MarkdownWriter) WritePackages(pkgs []*model.Package) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Search Results")
	md.PlainText("")

	rows := make([][]string, 0, len(pkgs))
	for _, pkg := range pkgs {
		rows = append(rows, []string{
			"`" + pkg.AbsPath.String() + "`",
			orDash(pkg.Version),
			orDash(pkg.License),
			firstLine(pkg.Description),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Attribute Path", "Version", "License", "Description"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(pkgs) > 0 {
		w.writeSystemChart(md, pkgs)
	}

	return len(md.String()), md.Build()
}

// writeSystemChart writes a mermaid pie chart of results per system.
func (w *MarkdownWriter) writeSystemChart(md *markdown.Markdown, pkgs []*model.Package) {
	counts := make(map[model.System]int)
	var order []model.System
	for _, pkg := range pkgs {
		if counts[pkg.System] == 0 {
			order = append(order, pkg.System)
		}
		counts[pkg.System]++
	}
	if len(order) < 2 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Results per System"),
		piechart.WithShowData(true),
	)
	for _, system := range order {
		chart.LabelAndIntValue(system, uint64(counts[system]))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// WriteDatabases outputs the cache listing as a Markdown table.
func (w *MarkdownWriter) WriteDatabases(infos []model.DatabaseInfo) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Package Databases")
	md.PlainText("")

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			"`" + shortHash(info.Fingerprint.String()) + "`",
			"`" + info.LockedRef.String + "`",
			strconv.Itoa(info.TablesVersion) + "." + strconv.Itoa(info.ViewsVersion),
			"`" + shortHash(info.RulesHash) + "`",
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Fingerprint", "Flake", "Schema", "Rules"},
		Rows:   rows,
	})
	md.PlainText("")

	return len(md.String()), md.Build()
}

// orDash substitutes a dash for empty table cells.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
