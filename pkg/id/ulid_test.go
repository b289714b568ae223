package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewULID(t *testing.T) {
	a := NewULID()
	b := NewULID()

	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.True(t, IsValidULID(a))

	// Monotonic entropy keeps same-millisecond ids ordered.
	assert.Less(t, a, b)
}

func TestIsValidULID(t *testing.T) {
	assert.False(t, IsValidULID(""))
	assert.False(t, IsValidULID("not-a-ulid"))
	assert.False(t, IsValidULID("0123456789012345678901234U")) // U not in alphabet
}
