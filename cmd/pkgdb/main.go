// Package main provides the entry point for the pkgdb CLI.
//
// pkgdb scrapes package-set flakes into per-flake SQLite databases and
// answers point lookups and ranked search queries against them.
//
// Usage:
//
//	pkgdb scrape [flake-ref]
//	pkgdb search --pname hello
//	pkgdb get path <flake-ref> <row-id>
//	pkgdb list
//
// See --help for all available options.
package main

import "os"

// main is the entry point for pkgdb.
func main() {
	os.Exit(Execute())
}
