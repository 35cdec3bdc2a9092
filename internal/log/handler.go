package log

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Truncation limits for attribute values, in bytes. Verbose mode keeps
// more of the value so evaluation traces stay debuggable.
const (
	// DefaultMaxValueLen bounds attribute values in normal operation.
	DefaultMaxValueLen = 256

	// VerboseMaxValueLen bounds attribute values in verbose mode.
	VerboseMaxValueLen = 4096
)

// truncationMarker is appended to values that were cut short.
const truncationMarker = "...[truncated]"

// CompactHandler wraps an slog.Handler to flatten and truncate
// oversized attribute values. Multi-line values (Nix evaluation
// traces in particular) are collapsed onto one line and cut at the
// configured limit before reaching the underlying handler.
//
// Design decision: We use a handler wrapper rather than trimming at
// each call site because:
//  1. It integrates seamlessly with standard slog APIs
//  2. It works with any underlying handler (text, JSON, etc.)
//  3. Call sites stay honest; no value is quietly dropped, only shortened
type CompactHandler struct {
	// handler is the underlying slog handler that receives compacted records.
	handler slog.Handler

	// maxValueLen is the byte limit applied to string attribute values.
	maxValueLen int
}

// NewCompactHandler creates a new CompactHandler wrapping the given handler.
// String attribute values longer than maxValueLen bytes are flattened and
// truncated before being passed on. If handler is nil, the returned
// CompactHandler uses slog.Default().Handler(). A non-positive
// maxValueLen falls back to DefaultMaxValueLen.
func NewCompactHandler(handler slog.Handler, maxValueLen int) *CompactHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	if maxValueLen <= 0 {
		maxValueLen = DefaultMaxValueLen
	}
	return &CompactHandler{handler: handler, maxValueLen: maxValueLen}
}

// Enabled reports whether the handler handles records at the given level.
// It delegates to the underlying handler.
func (h *CompactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle compacts the record's attributes and passes it to the underlying handler.
func (h *CompactHandler) Handle(ctx context.Context, r slog.Record) error {
	compacted := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	r.Attrs(func(a slog.Attr) bool {
		compacted.AddAttrs(h.compactAttr(a))
		return true
	})

	return h.handler.Handle(ctx, compacted)
}

// WithAttrs returns a new handler with the given attributes added.
// Attributes are compacted before being added.
func (h *CompactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	compacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		compacted[i] = h.compactAttr(a)
	}
	return &CompactHandler{handler: h.handler.WithAttrs(compacted), maxValueLen: h.maxValueLen}
}

// WithGroup returns a new handler with the given group name.
func (h *CompactHandler) WithGroup(name string) slog.Handler {
	return &CompactHandler{handler: h.handler.WithGroup(name), maxValueLen: h.maxValueLen}
}

// compactAttr compacts a single attribute, recursively handling groups.
func (h *CompactHandler) compactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		compacted := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			compacted[i] = h.compactAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(compacted...)}
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.compactString(a.Value.String()))
	case slog.KindAny:
		// Errors commonly carry the full evaluation trace in their
		// message, so render them as strings and compact those too.
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, h.compactString(err.Error()))
		}
	}
	return a
}

// compactString collapses a multi-line value onto one line and
// truncates it at the configured byte limit, keeping the cut on a
// rune boundary.
func (h *CompactHandler) compactString(s string) string {
	if strings.ContainsAny(s, "\n\t") {
		fields := strings.Fields(s)
		s = strings.Join(fields, " ")
	}
	if len(s) <= h.maxValueLen {
		return s
	}

	cut := h.maxValueLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}

// NewLogger creates a new slog.Logger with compact handling.
// Oversized attribute values are flattened and truncated in all output.
//
// Parameters:
//   - w: The io.Writer to write log output to (typically os.Stderr)
//   - verbose: If true, sets log level to Debug and raises the
//     truncation limit; otherwise the level is Warn
//
// Returns a *slog.Logger that can be used with slog.SetDefault() or
// passed to components that accept *slog.Logger.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	maxLen := DefaultMaxValueLen
	if verbose {
		level = slog.LevelDebug
		maxLen = VerboseMaxValueLen
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	textHandler := slog.NewTextHandler(w, opts)
	return slog.New(NewCompactHandler(textHandler, maxLen))
}

// NewJSONLogger creates a new slog.Logger with compact handling that
// outputs JSON format. Useful for structured log aggregation.
func NewJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	maxLen := DefaultMaxValueLen
	if verbose {
		level = slog.LevelDebug
		maxLen = VerboseMaxValueLen
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	jsonHandler := slog.NewJSONHandler(w, opts)
	return slog.New(NewCompactHandler(jsonHandler, maxLen))
}
