package store

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

const (
	// DefaultSearchLimit caps search results when no limit is requested.
	DefaultSearchLimit = 20

	// MaxSearchLimit is the hard upper bound for a search page.
	MaxSearchLimit = 100
)

// CertificateFilter narrows a verification lookup. Empty fields are ignored
// and the remaining criteria are ANDed.
type CertificateFilter struct {
	// CertificateNumber matches exactly.
	CertificateNumber string
	// HolderName matches as a case-insensitive substring.
	HolderName string
	// CenterName matches the training center's name as a case-insensitive
	// substring.
	CenterName string
}

// IsEmpty reports whether no criteria are set.
func (f CertificateFilter) IsEmpty() bool {
	return f.CertificateNumber == "" && f.HolderName == "" && f.CenterName == ""
}

func (f CertificateFilter) predicates() []predicate {
	preds := make([]predicate, 0, 3)

	if f.CertificateNumber != "" {
		preds = append(preds, equals("c.certificate_number", f.CertificateNumber))
	}

	if f.HolderName != "" {
		preds = append(preds, containsFold("c.holder_name_key", f.HolderName))
	}

	if f.CenterName != "" {
		preds = append(preds, containsFold("tc.name_key", f.CenterName))
	}

	return preds
}

// predicate is a single SQL condition with its bound arguments. Column names
// are fixed by the caller; user input only ever reaches args.
type predicate struct {
	sql  string
	args []any
}

func equals(column string, value any) predicate {
	return predicate{sql: column + " = ?", args: []any{value}}
}

// containsFold matches term as a substring of a key column written by
// searchKey. SQL LOWER folds only ASCII on SQLite, so both sides fold in Go.
func containsFold(keyColumn, term string) predicate {
	return predicate{
		sql:  keyColumn + " LIKE ? ESCAPE '\\'",
		args: []any{"%" + escapeLike(searchKey(term)) + "%"},
	}
}

var folder = cases.Fold()

// searchKey returns the Unicode case-folded, NFC-normalized form of s.
func searchKey(s string) string {
	return norm.NFC.String(folder.String(s))
}

// anyOf joins predicates with OR inside a single parenthesized group.
func anyOf(preds ...predicate) predicate {
	parts := make([]string, 0, len(preds))
	args := make([]any, 0, len(preds))

	for _, p := range preds {
		parts = append(parts, p.sql)
		args = append(args, p.args...)
	}

	return predicate{sql: "(" + strings.Join(parts, " OR ") + ")", args: args}
}

// apply ANDs the predicates onto the query.
func apply(db *gorm.DB, preds ...predicate) *gorm.DB {
	for _, p := range preds {
		db = db.Where(p.sql, p.args...)
	}

	return db
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE wildcards in user input match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// clampLimit normalizes a requested page size.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	default:
		return limit
	}
}

const certificateColumns = `c.id, c.certificate_number, c.holder_name,
	c.program_id, c.center_id, c.issue_date, c.expiry_date, c.status,
	p.program_name, p.program_code, tc.name AS training_center, tc.country`

// certificateQuery selects certificates joined with their program and center.
// Inner joins drop certificates whose program or center has been deleted.
func certificateQuery(db *gorm.DB) *gorm.DB {
	return db.Table("certificates AS c").
		Select(certificateColumns).
		Joins("JOIN training_programs p ON c.program_id = p.id").
		Joins("JOIN training_centers tc ON c.center_id = tc.id")
}
