package db

import (
	"strconv"
	"strings"
)

// Rebind converts '?' placeholders to the dialect's bind format.
// Repository queries are written with '?' and rebound, so the same SQL
// serves Postgres ($1, $2, ...) and sqlite.
func (d *DB) Rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
