package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mnemo/internal/visibility"
)

func TestAsOfNilIsCurrent(t *testing.T) {
	assert.Equal(t, visibility.Current, AsOf(nil))
}

func TestAsOfNonNil(t *testing.T) {
	tx := int64(7)
	got := AsOf(&tx)
	assert.False(t, got.IsCurrent())
	assert.Equal(t, int64(7), *got.Tx)
}

func TestAsOfParam(t *testing.T) {
	assert.Equal(t, "", asOfParam(nil))
	tx := int64(42)
	assert.Equal(t, "42", asOfParam(&tx))
}
