// Package sqlutil holds the dialect-aware SQL text helpers shared by the
// relational drivers.
package sqlutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/peternagy/tablemoins/internal/types"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 10000
)

// Dialect describes how a backend quotes identifiers and string literals.
// BackslashEscapes is set when a backslash inside a string literal is an
// escape character (MySQL without NO_BACKSLASH_ESCAPES).
type Dialect struct {
	Name             string
	QuoteChar        byte
	BackslashEscapes bool
}

var (
	Postgres = Dialect{Name: "postgresql", QuoteChar: '"'}
	MySQL    = Dialect{Name: "mysql", QuoteChar: '`', BackslashEscapes: true}
)

// QuoteIdentifier wraps name in the dialect quote character, doubling any
// quote characters inside it.
func (d Dialect) QuoteIdentifier(name string) string {
	q := string(d.QuoteChar)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// UnquoteIdentifier reverses QuoteIdentifier. Unquoted input is returned as is.
func (d Dialect) UnquoteIdentifier(quoted string) string {
	q := string(d.QuoteChar)
	if len(quoted) < 2 || !strings.HasPrefix(quoted, q) || !strings.HasSuffix(quoted, q) {
		return quoted
	}
	return strings.ReplaceAll(quoted[1:len(quoted)-1], q+q, q)
}

// QuoteQualified quotes each non-empty part and joins them with dots.
func (d Dialect) QuoteQualified(parts ...string) string {
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		quoted = append(quoted, d.QuoteIdentifier(p))
	}
	return strings.Join(quoted, ".")
}

// QuoteValue renders a scalar as a SQL literal. Strings are single quoted
// with inner quotes doubled, nil becomes NULL, other scalars are stringified.
func (d Dialect) QuoteValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return d.quoteString(val)
	case []byte:
		return d.quoteString(string(val))
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return "'" + val.Format("2006-01-02 15:04:05.999999") + "'"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func (d Dialect) quoteString(s string) string {
	if d.BackslashEscapes {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// NormalizePage clamps limit and offset into their valid ranges.
func NormalizePage(opts types.PageOptions) types.PageOptions {
	if opts.Limit <= 0 {
		opts.Limit = DefaultPageLimit
	}
	if opts.Limit > MaxPageLimit {
		opts.Limit = MaxPageLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts
}

// PageQuery is the pair of statements behind one paged read.
type PageQuery struct {
	Select string
	Count  string
}

// BuildPage composes the paginated SELECT for schema.table and the matching
// COUNT(*) statement. modifier is inserted right after SELECT (for example
// SQL_CALC_FOUND_ROWS) and may be empty.
func (d Dialect) BuildPage(schema, table string, opts types.PageOptions, modifier string) PageQuery {
	opts = NormalizePage(opts)
	from := d.QuoteQualified(schema, table)

	var where string
	if f := strings.TrimSpace(opts.Filter); f != "" {
		where = " WHERE " + f
	}

	var order string
	if opts.Sort != nil && opts.Sort.Column != "" {
		order = " ORDER BY " + d.QuoteIdentifier(opts.Sort.Column)
		if opts.Sort.Desc {
			order += " DESC"
		} else {
			order += " ASC"
		}
	}

	sel := "SELECT "
	if modifier != "" {
		sel += modifier + " "
	}

	return PageQuery{
		Select: fmt.Sprintf("%s* FROM %s%s%s LIMIT %d OFFSET %d", sel, from, where, order, opts.Limit, opts.Offset),
		Count:  fmt.Sprintf("SELECT COUNT(*) FROM %s%s", from, where),
	}
}

var rowKeywords = map[string]bool{
	"SELECT": true, "SHOW": true, "DESCRIBE": true, "DESC": true,
	"EXPLAIN": true, "WITH": true, "VALUES": true, "TABLE": true,
}

// ReturnsRows reports whether a statement produces a result set, judged by
// its leading keyword. Leading comments are skipped.
func ReturnsRows(statement string) bool {
	s := strings.TrimLeft(skipLeadingComments(statement), " \t\r\n(")
	end := strings.IndexAny(s, " \t\r\n(;")
	if end < 0 {
		end = len(s)
	}
	return rowKeywords[strings.ToUpper(s[:end])]
}

// skipLeadingComments drops whitespace and any "--", "#" or "/* */" comments
// in front of the first token.
func skipLeadingComments(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"), strings.HasPrefix(s, "#"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s[2:], "*/")
			if end < 0 {
				return ""
			}
			s = s[end+4:]
		default:
			return s
		}
	}
}
