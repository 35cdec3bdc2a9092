package report

import (
	"io"

	"pkgdb/internal/model"
)

// Writer defines the interface for report output.
// Implementations render search results and cache listings in various
// formats.
//
// Design decision: We use an interface to allow different output
// formats and destinations. This enables writing to files, stdout, or
// network connections with the same API.
type Writer interface {
	// WritePackages outputs a list of package records, in the order
	// given. Returns the number of bytes written and any error
	// encountered.
	WritePackages(pkgs []*model.Package) (int, error)

	// WriteDatabases outputs a cache listing.
	WriteDatabases(infos []model.DatabaseInfo) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different from
// io.Writer. We write records, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WritePackages outputs the packages to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on the first error encountered.
func (m *MultiWriter) WritePackages(pkgs []*model.Package) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WritePackages(pkgs)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteDatabases outputs the cache listing to all configured Writers.
func (m *MultiWriter) WriteDatabases(infos []model.DatabaseInfo) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteDatabases(infos)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides the shared output destination for writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
