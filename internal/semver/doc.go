// Package semver handles the semantic-version concerns of the package
// database: coercing loose version strings (e.g. "v1.2" or "foo@1.02.0")
// into proper semvers at scrape time, detecting date-style versions, and
// evaluating node-style range constraints for the query post-filter.
//
// Range satisfaction is not expressible in SQL, so queries run their
// candidate version sets through Filter in-process after the SQL pass.
package semver
