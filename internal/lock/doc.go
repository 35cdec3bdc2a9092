// Package lock implements cross-process coordination for package
// database creation using a heartbeat lock file.
//
// Scraping a large flake takes minutes, and several processes may want
// the same database at once. Exactly one process should do the work
// while the rest wait. The protocol:
//
//  1. Every process tries to create the lock file exclusively. The
//     winner becomes the writer and touches the file's modification
//     time on a short interval as a heartbeat.
//  2. Losers register interest by appending their process id to the
//     lock file, then watch it. When the file disappears, the writer
//     finished and the database is ready.
//  3. If the heartbeat goes stale, the writer died. The registered
//     process with the lowest pid takes over creation; the others keep
//     waiting on the new writer's heartbeat.
//
// The heartbeat approach needs no OS advisory locks and survives
// writer crashes, at the cost of a staleness window a few hundred
// milliseconds wide.
package lock
