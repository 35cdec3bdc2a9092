package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"pkgdb/internal/model"
	"pkgdb/internal/semver"
)

// PkgQueryArgs holds the filter parameters for a package search.
// Empty strings and nil slices mean "no filter". The zero value is not
// usable; start from DefaultPkgQueryArgs.
type PkgQueryArgs struct {
	// Name filters on the full store name. Mutually exclusive with
	// Pname, Version, and Semver.
	Name string

	// Pname filters on the exact package name.
	Pname string

	// Version filters on the exact raw version string. Mutually
	// exclusive with Semver.
	Version string

	// Semver filters on a semantic version range, applied as a
	// post-filter after SQL execution.
	Semver string

	// PartialMatch fuzzily matches pname, attrName, and description.
	PartialMatch string

	// PartialNameMatch fuzzily matches pname and attrName only.
	// Mutually exclusive with PartialMatch.
	PartialNameMatch string

	// PartialNameOrRelPathMatch fuzzily matches pname, attrName, and
	// the dotted relative path.
	PartialNameOrRelPathMatch string

	// PnameOrAttrName matches pname or attrName exactly.
	PnameOrAttrName string

	// Licenses restricts results to rows carrying one of these SPDX
	// identifiers.
	Licenses []string

	// AllowBroken includes rows marked broken.
	AllowBroken bool

	// AllowUnfree includes rows marked unfree.
	AllowUnfree bool

	// PreferPreReleases ranks pre-release versions above releases.
	PreferPreReleases bool

	// Subtrees restricts and ranks the subtrees searched.
	Subtrees []model.Subtree

	// Systems restricts and ranks the systems searched. Order defines
	// result preference.
	Systems []model.System

	// RelPath filters on the exact relative attribute path.
	RelPath model.AttrPath

	// Limit truncates the result list when positive.
	Limit int

	// Deduplicate collapses rows sharing a relative path to one
	// representative row.
	Deduplicate bool
}

// DefaultPkgQueryArgs returns query arguments with the conventional
// defaults: unfree allowed, broken excluded, current system only.
func DefaultPkgQueryArgs() PkgQueryArgs {
	return PkgQueryArgs{
		AllowUnfree: true,
		Systems:     []model.System{model.CurrentSystem()},
	}
}

// Check validates the argument combination.
func (args *PkgQueryArgs) Check() error {
	if args.Name != "" && (args.Pname != "" || args.Version != "" || args.Semver != "") {
		return fmt.Errorf("%w: queries may not mix 'name' with any of 'pname', 'version', or 'semver'", ErrInvalidQueryArg)
	}
	if args.Version != "" && args.Semver != "" {
		return fmt.Errorf("%w: queries may not mix 'version' and 'semver'", ErrInvalidQueryArg)
	}
	for _, license := range args.Licenses {
		if strings.ContainsRune(license, '\'') {
			return fmt.Errorf("%w: license contains illegal character \"'\": %s", ErrInvalidQueryArg, license)
		}
	}
	for _, system := range args.Systems {
		if !model.ValidSystem(system) {
			return fmt.Errorf("%w: unrecognized or unsupported system: %s", ErrInvalidQueryArg, system)
		}
	}
	for _, subtree := range args.Subtrees {
		if !model.ValidSubtree(subtree) {
			return fmt.Errorf("%w: unrecognized subtree: %s", ErrInvalidQueryArg, subtree)
		}
	}
	if args.PartialMatch != "" && args.PartialNameMatch != "" {
		return fmt.Errorf("%w: 'partialMatch' and 'partialNameMatch' filters may not be used together", ErrInvalidQueryArg)
	}
	return nil
}

// PkgQuery compiles PkgQueryArgs into a single SQL statement over the
// v_PackagesSearch view.
//
// The statement is assembled from three fragments: selected columns
// (including computed match and rank columns), WHERE conditions, and
// ORDER BY terms. Ranking happens inside SQL; only semantic version
// range filtering is done in Go afterwards, preserving SQL order.
type PkgQuery struct {
	args PkgQueryArgs

	selects []string
	wheres  []string
	orders  []string
	binds   []any

	// exported are the outer SELECT columns. The first must be the
	// row id and the second the semver column for post-filtering.
	exported []string
}

// NewPkgQuery validates args and builds the query.
func NewPkgQuery(args *PkgQueryArgs) (*PkgQuery, error) {
	if err := args.Check(); err != nil {
		return nil, err
	}

	query := &PkgQuery{
		args:     *args,
		exported: []string{"id", "semver"},
	}
	query.build()
	return query, nil
}

func (q *PkgQuery) addSelection(column string) { q.selects = append(q.selects, column) }
func (q *PkgQuery) addOrderBy(order string)    { q.orders = append(q.orders, order) }
func (q *PkgQuery) addWhere(cond string)       { q.wheres = append(q.wheres, "( "+cond+" )") }

// bind registers a named parameter. Rebinding a name is a no-op so
// combined fuzzy filters sharing :partialMatch bind it once.
func (q *PkgQuery) bind(name, value string) {
	for _, existing := range q.binds {
		if named, ok := existing.(sql.NamedArg); ok && named.Name == name {
			return
		}
	}
	q.binds = append(q.binds, sql.Named(name, value))
}

// mkPatternString escapes LIKE metacharacters and wraps the match
// string in wildcards.
func mkPatternString(matchString string) string {
	escaped := strings.NewReplacer(`_`, `\_`, `%`, `\%`).Replace(matchString)
	return "%" + escaped + "%"
}

// quotedIn renders "column IN ( 'a', 'b' )". Elements must already be
// validated to exclude single quotes.
func quotedIn(column string, elems []string) string {
	quoted := make([]string, len(elems))
	for i, elem := range elems {
		quoted[i] = "'" + elem + "'"
	}
	return column + " IN ( " + strings.Join(quoted, ", ") + " )"
}

func (q *PkgQuery) build() {
	q.addSelection("*")
	q.initMatch()

	if q.args.Name != "" {
		q.addWhere("name = :name")
		q.bind("name", q.args.Name)
	}
	if q.args.Pname != "" {
		q.addWhere("pname = :pname")
		q.bind("pname", q.args.Pname)
	}
	if q.args.Version != "" {
		q.addWhere("version = :version")
		q.bind("version", q.args.Version)
	} else if q.args.Semver != "" {
		q.addWhere("semver IS NOT NULL")
	}

	if len(q.args.Licenses) != 0 {
		q.addWhere("license IS NOT NULL")
		q.addWhere(quotedIn("license", q.args.Licenses))
	}
	if !q.args.AllowBroken {
		q.addWhere("( broken IS NULL ) OR ( broken = FALSE )")
	}
	if !q.args.AllowUnfree {
		q.addWhere("( unfree IS NULL ) OR ( unfree = FALSE )")
	}
	if q.args.RelPath != nil {
		q.addWhere("relPath = :relPath")
		// Compare against the stored JSON list form.
		encoded, _ := json.Marshal([]string(q.args.RelPath))
		q.bind("relPath", string(encoded))
	}

	q.initSubtrees()
	q.initSystems()
	q.initOrderBy()
}

// initMatch adds the exact and fuzzy match columns and conditions.
// Unused match columns are selected as NULL so the shared ORDER BY
// clause stays valid for every argument combination.
func (q *PkgQuery) initMatch() {
	if q.args.PnameOrAttrName != "" {
		q.addSelection("( :pnameOrAttrName = pname ) AS exactPname")
		q.addSelection("( :pnameOrAttrName = attrName ) AS exactAttrName")
		q.bind("pnameOrAttrName", q.args.PnameOrAttrName)
		q.addWhere("( exactPname OR exactAttrName )")
	} else {
		q.addSelection("NULL AS exactPname")
		q.addSelection("NULL AS exactAttrName")
	}

	hasPartialNameMatch := q.args.PartialNameMatch != ""
	hasPartialMatch := q.args.PartialMatch != ""
	hasPartialNameOrRelPathMatch := q.args.PartialNameOrRelPathMatch != ""

	if !(hasPartialNameMatch || hasPartialMatch || hasPartialNameOrRelPathMatch) {
		q.addSelection("NULL AS matchExactPname")
		q.addSelection("NULL AS matchExactAttrName")
		q.addSelection("NULL AS matchPartialPname")
		q.addSelection("NULL AS matchPartialAttrName")
		q.addSelection("NULL AS matchPartialDescription")
		q.addSelection("NULL AS matchExactRelPath")
		q.addSelection("NULL AS matchPartialRelPath")
		return
	}

	// Every fuzzy variant checks pname and attrName, with exact and
	// partial forms kept separate so ordering can prefer tighter hits.
	q.addSelection("LOWER( pname ) = LOWER( :partialMatch ) AS matchExactPname")
	q.addSelection("LOWER( attrName ) = LOWER( :partialMatch ) AS matchExactAttrName")
	q.addSelection(`( pname LIKE :partialMatchPattern ESCAPE '\' ) AS matchPartialPname`)
	q.addSelection(`( attrName LIKE :partialMatchPattern ESCAPE '\' ) AS matchPartialAttrName`)

	if hasPartialNameMatch {
		q.bind("partialMatch", q.args.PartialNameMatch)
		q.bind("partialMatchPattern", mkPatternString(q.args.PartialNameMatch))
		q.addWhere("( matchExactPname OR matchExactAttrName OR matchPartialPname OR matchPartialAttrName )")
	}

	if hasPartialMatch {
		q.addSelection(`( description LIKE :partialMatchPattern ESCAPE '\' ) AS matchPartialDescription`)
		q.bind("partialMatch", q.args.PartialMatch)
		q.bind("partialMatchPattern", mkPatternString(q.args.PartialMatch))
		q.addWhere("( matchExactPname OR matchExactAttrName OR matchPartialPname OR matchPartialAttrName OR matchPartialDescription )")
	} else {
		q.addSelection("NULL AS matchPartialDescription")
	}

	if hasPartialNameOrRelPathMatch {
		// Join relPath with '.' so searches can include dots.
		q.addSelection("(SELECT LOWER( group_concat(value, '.') ) = LOWER( :partialMatch ) " +
			"FROM json_each(v_PackagesSearch.relPath)) AS matchExactRelPath")
		q.addSelection(`(SELECT group_concat(value, '.') LIKE :partialMatchPattern ESCAPE '\' ` +
			"FROM json_each(v_PackagesSearch.relPath)) AS matchPartialRelPath")
		q.bind("partialMatch", q.args.PartialNameOrRelPathMatch)
		q.bind("partialMatchPattern", mkPatternString(q.args.PartialNameOrRelPathMatch))
		q.addWhere("( matchExactPname OR matchExactAttrName OR matchPartialPname OR matchPartialAttrName OR matchPartialRelPath )")
	} else {
		q.addSelection("NULL AS matchExactRelPath")
		q.addSelection("NULL AS matchPartialRelPath")
	}
}

// initSubtrees adds subtree filtering and ranking. Rank order follows
// the argument order.
func (q *PkgQuery) initSubtrees() {
	if len(q.args.Subtrees) == 0 {
		q.addSelection("0 AS subtreesRank")
		return
	}

	var rank strings.Builder
	rank.WriteString("CASE ")
	names := make([]string, len(q.args.Subtrees))
	for i, subtree := range q.args.Subtrees {
		names[i] = string(subtree)
		fmt.Fprintf(&rank, "WHEN subtree = '%s' THEN %d ", subtree, i)
	}
	rank.WriteString("END AS subtreesRank")
	q.addSelection(rank.String())
	q.addWhere(quotedIn("subtree", names))
}

// initSystems adds system filtering and ranking. Rank order follows
// the argument order.
func (q *PkgQuery) initSystems() {
	if len(q.args.Systems) == 0 {
		q.addSelection("0 AS systemsRank")
		return
	}
	q.addWhere(quotedIn("system", q.args.Systems))

	var rank strings.Builder
	rank.WriteString("CASE ")
	for i, system := range q.args.Systems {
		fmt.Fprintf(&rank, "WHEN system = '%s' THEN %d ", system, i)
	}
	rank.WriteString("END AS systemsRank")
	q.addSelection(rank.String())
}

// initOrderBy establishes the result ranking.
//
// Exact name hits come first, then exact fuzzy hits, then shallower
// paths, then partial hits, then the caller's subtree and system
// preference, and finally version recency with broken and unfree rows
// pushed to the back.
func (q *PkgQuery) initOrderBy() {
	q.addOrderBy(`
	  exactPname              DESC
	, matchExactPname         DESC
	, exactAttrName           DESC
	, matchExactAttrName      DESC
	, matchExactRelPath       DESC
	, depth                   ASC
	, matchPartialPname       DESC
	, matchPartialAttrName    DESC
	, matchPartialRelPath     DESC
	, matchPartialDescription DESC
	, subtreesRank ASC
	, systemsRank ASC
	, pname ASC
	, versionType ASC`)

	if q.args.PreferPreReleases {
		q.addOrderBy(`
		  major  DESC NULLS LAST
		, minor  DESC NULLS LAST
		, patch  DESC NULLS LAST
		, preTag DESC NULLS FIRST`)
	} else {
		q.addOrderBy(`
		  preTag DESC NULLS FIRST
		, major  DESC NULLS LAST
		, minor  DESC NULLS LAST
		, patch  DESC NULLS LAST`)
	}

	q.addOrderBy(`
	  versionDate DESC NULLS LAST
	-- Lexicographic as fallback for misc. versions
	, v_PackagesSearch.version ASC NULLS LAST
	, brokenRank ASC
	, unfreeRank ASC
	, attrName ASC`)
}

// String renders the full SQL statement.
func (q *PkgQuery) String() string {
	var qry strings.Builder
	qry.WriteString("SELECT ")
	qry.WriteString(strings.Join(q.exported, ", "))
	qry.WriteString(" FROM ( SELECT ")
	qry.WriteString(strings.Join(q.selects, ", "))
	qry.WriteString(" FROM v_PackagesSearch")
	if len(q.wheres) != 0 {
		qry.WriteString(" WHERE ")
		qry.WriteString(strings.Join(q.wheres, " AND "))
	}
	// GROUP BY picks one arbitrary row per relative path. Callers
	// using deduplication only consume path and description, which are
	// shared by every row in a group.
	if q.args.Deduplicate {
		qry.WriteString(" GROUP BY relPath")
	}
	if len(q.orders) != 0 {
		qry.WriteString(" ORDER BY ")
		qry.WriteString(strings.Join(q.orders, ", "))
	}
	qry.WriteString(" )")
	return qry.String()
}

// Execute runs the query and returns matching row ids in ranked
// order, applying the semantic version range post-filter and the
// result limit.
func (q *PkgQuery) Execute(ctx context.Context, db *sql.DB) ([]int64, error) {
	rows, err := db.QueryContext(ctx, q.String(), q.binds...)
	if err != nil {
		return nil, fmt.Errorf("failed to run package query: %w", err)
	}
	defer rows.Close()

	type idVersion struct {
		id      int64
		version string
	}

	var matches []idVersion
	seen := make(map[string]bool)
	for rows.Next() {
		var id int64
		var version sql.NullString
		if err := rows.Scan(&id, &version); err != nil {
			return nil, fmt.Errorf("failed to scan package query row: %w", err)
		}
		matches = append(matches, idVersion{id: id, version: version.String})
		seen[version.String] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to run package query: %w", err)
	}

	// Range filtering happens here rather than in SQL. The ranked SQL
	// order is preserved by filtering in place.
	satisfied := func(string) bool { return true }
	if q.args.Semver != "" && !semver.MatchesAll(q.args.Semver) {
		versions := make([]string, 0, len(seen))
		for version := range seen {
			versions = append(versions, version)
		}
		keep, err := semver.Filter(q.args.Semver, versions)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid semver range %q: %v", ErrInvalidQueryArg, q.args.Semver, err)
		}
		keepSet := make(map[string]bool, len(keep))
		for _, version := range keep {
			keepSet[version] = true
		}
		satisfied = func(v string) bool { return keepSet[v] }
	}

	var ids []int64
	for _, match := range matches {
		if !satisfied(match.version) {
			continue
		}
		ids = append(ids, match.id)
		if q.args.Limit > 0 && len(ids) == q.args.Limit {
			break
		}
	}
	return ids, nil
}
