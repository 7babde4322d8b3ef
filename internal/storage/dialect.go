package storage

import (
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported SQL backends
type Dialect struct {
	Name   string // migration directory and migrate driver name
	Driver string // database/sql driver name
	dollar bool   // $1-style placeholders instead of ?
}

var (
	SQLite   = Dialect{Name: "sqlite", Driver: "sqlite"}
	Postgres = Dialect{Name: "postgres", Driver: "postgres", dollar: true}
)

// Rebind rewrites ? placeholders into the dialect's style. Queries in this
// package never contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
