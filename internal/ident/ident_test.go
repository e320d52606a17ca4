package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumn(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "person/email", "email"},
		{"hyphenated word", "person/first-name", "first_name"},
		{"dotted namespace", "db.view/optional-attributes", "optional_attributes"},
		{"no namespace", "email", "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Column(tt.input))
		})
	}
}

func TestRelation(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "person/email", "attr_person_email"},
		{"dotted namespace", "db.view/ident", "attr_db_view_ident"},
		{"hyphenated word", "person/first-name", "attr_person_first_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Relation(tt.input))
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("person/email"))
	assert.True(t, Valid("db.view/ident"))
	assert.False(t, Valid("noslash"))
	assert.False(t, Valid("person/"))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"users"`, Quote("users"))
	assert.Equal(t, `"user""table"`, Quote(`user"table`))
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "'alice'", QuoteLiteral("alice"))
	assert.Equal(t, "'o''brien'", QuoteLiteral("o'brien"))
}
