// Package log provides compact logging for scrape and query commands,
// built on top of the standard slog package.
//
// Nix evaluation failures carry multi-kilobyte stack traces, and a
// single scrape page can hit hundreds of them. The CompactHandler
// flattens and truncates oversized attribute values so that one failed
// attribute produces one readable log line instead of a wall of trace
// output, while verbose mode raises the truncation limit for
// debugging.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//
//	logger.Warn("eval failed",
//	    "attrPath", "legacyPackages.x86_64-linux.broken",
//	    "error", longNixTrace, // flattened and truncated
//	)
package log
