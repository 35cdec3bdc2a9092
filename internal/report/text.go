package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"pkgdb/internal/model"
)

// TextWriter outputs human-readable text.
// This format is designed for terminal display, one record per line.
//
// Design decision: We use plain text with tab alignment rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type TextWriter struct {
	baseWriter

	// basenames reduces the cache listing to database file basenames,
	// one per line.
	basenames bool

	// verbose adds the flake reference and rules hash columns to the
	// cache listing and the description to package rows.
	verbose bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithBasenames reduces cache listings to file basenames.
func WithBasenames(basenames bool) TextWriterOption {
	return func(w *TextWriter) {
		w.basenames = basenames
	}
}

// WithVerbose enables verbose output with additional columns.
func WithVerbose(verbose bool) TextWriterOption {
	return func(w *TextWriter) {
		w.verbose = verbose
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WritePackages outputs one line per package: attribute path, version,
// and with verbose enabled the description.
func (w *TextWriter) WritePackages(pkgs []*model.Package) (int, error) {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 2, 4, 2, ' ', 0)

	for _, pkg := range pkgs {
		version := pkg.Version
		if version == "" {
			version = "-"
		}
		if w.verbose {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", pkg.AbsPath, version, firstLine(pkg.Description))
		} else {
			fmt.Fprintf(tw, "%s\t%s\n", pkg.AbsPath, version)
		}
	}
	if err := tw.Flush(); err != nil {
		return 0, err
	}
	return io.WriteString(w.output, sb.String())
}

// WriteDatabases outputs the cache listing, either full rows or bare
// basenames.
func (w *TextWriter) WriteDatabases(infos []model.DatabaseInfo) (int, error) {
	var sb strings.Builder

	if w.basenames {
		for _, info := range infos {
			sb.WriteString(filepath.Base(info.Path))
			sb.WriteByte('\n')
		}
		return io.WriteString(w.output, sb.String())
	}

	tw := tabwriter.NewWriter(&sb, 2, 4, 2, ' ', 0)
	for _, info := range infos {
		if w.verbose {
			fmt.Fprintf(tw, "%s\t%s\t%s\n",
				info.Fingerprint, info.LockedRef.String, shortHash(info.RulesHash))
		} else {
			fmt.Fprintf(tw, "%s\t%s\n", info.Fingerprint, info.LockedRef.String)
		}
	}
	if err := tw.Flush(); err != nil {
		return 0, err
	}
	return io.WriteString(w.output, sb.String())
}

// firstLine truncates multi-line descriptions to their first line.
func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// shortHash abbreviates a content hash for display.
func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
