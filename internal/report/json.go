package report

import (
	"encoding/json"
	"io"
	"strings"

	"pkgdb/internal/model"
)

// JSONWriter outputs records in JSON format.
// This format is designed for tool integration and programmatic
// processing.
//
// Design decision: We use standard encoding/json rather than a
// third-party JSON library because:
// 1. It's part of the standard library (no extra dependencies)
// 2. It's sufficient for our needs
// 3. It provides consistent behavior across Go versions
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each
// level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default
// indentation. This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = ""
		w.indentString = "  "
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WritePackages outputs the packages as a JSON array, trailed by a
// newline.
func (w *JSONWriter) WritePackages(pkgs []*model.Package) (int, error) {
	if pkgs == nil {
		pkgs = []*model.Package{}
	}
	return w.writeValue(pkgs)
}

// WriteDatabases outputs the cache listing as a JSON array.
func (w *JSONWriter) WriteDatabases(infos []model.DatabaseInfo) (int, error) {
	if infos == nil {
		infos = []model.DatabaseInfo{}
	}
	return w.writeValue(infos)
}

func (w *JSONWriter) writeValue(value any) (int, error) {
	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(value, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return 0, err
	}
	if !strings.HasSuffix(string(data), "\n") {
		data = append(data, '\n')
	}
	return w.output.Write(data)
}
