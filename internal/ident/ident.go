// Package ident normalizes attribute idents ("person/email") into the two
// shapes the rest of the store needs: a child-relation name ("attr_person_email")
// and a view column name ("email"). It also quotes identifiers for emission
// into generated SQL.
package ident

import (
	"fmt"
	"regexp"
	"strings"
)

// identRe matches a namespaced attribute ident: "namespace/word-word2".
// The namespace itself may contain dots ("db.view/ident").
var identRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.]*/[a-zA-Z][a-zA-Z0-9_-]*$`)

// wordSepRe matches the separators normalized to underscore in table/column names.
var wordSepRe = regexp.MustCompile(`[-.]`)

// Valid reports whether s is a well-formed namespaced attribute ident.
func Valid(s string) bool {
	return identRe.MatchString(s)
}

// Split divides a namespaced ident into its namespace and local name.
// "person/email" -> ("person", "email"). Split does not validate s; callers
// that need a strict check should call Valid first.
func Split(s string) (namespace, name string, ok bool) {
	i := strings.IndexByte(s, '/')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// Column derives the view column name for an attribute ident by taking the
// part after the namespace separator and normalizing word separators to
// underscore: "person/email" -> "email", "person/first-name" -> "first_name".
func Column(attrIdent string) string {
	_, name, ok := Split(attrIdent)
	if !ok {
		name = attrIdent
	}
	return wordSepRe.ReplaceAllString(name, "_")
}

// Relation derives the deterministic child-relation name for an attribute
// ident: "person/email" -> "attr_person_email". Namespace and word
// separators are both normalized to underscore so the result is always a
// valid SQL identifier.
func Relation(attrIdent string) string {
	namespace, name, ok := Split(attrIdent)
	if !ok {
		return "attr_" + wordSepRe.ReplaceAllString(attrIdent, "_")
	}
	namespace = wordSepRe.ReplaceAllString(namespace, "_")
	name = wordSepRe.ReplaceAllString(name, "_")
	return fmt.Sprintf("attr_%s_%s", namespace, name)
}

// Quote renders name as a double-quoted PostgreSQL identifier, escaping any
// embedded double quotes. The child-relation DDL, the attribute registry,
// the view compiler and the DML translator pass the relation, column, view
// and function names they emit through Quote so regeneration never depends
// on a caller remembering to quote them.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral renders s as a single-quoted SQL string literal, doubling
// embedded quotes per the standard SQL escaping rule.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
