// Package rules implements the scrape-rules engine: a prefix tree over
// attribute-path segments that decides whether a given attribute should
// be recorded as a package, recursed into, or skipped entirely during
// scraping.
//
// Rules are loaded from a JSON document with four glob lists
// (allowPackage, disallowPackage, allowRecursive, disallowRecursive).
// A built-in document ships embedded in the binary and is loaded once
// per process; callers may substitute a custom document per invocation.
//
// Design decision: the tree is a plain recursive map keyed by attribute
// name segment rather than anything fancier. It is built once, treated
// as read-only afterwards, and therefore needs no synchronization; each
// process rebuilds it independently.
package rules
