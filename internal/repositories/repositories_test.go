package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPair(t *testing.T) {
	a, b := canonicalPair(8, 3)
	assert.Equal(t, int64(3), a)
	assert.Equal(t, int64(8), b)

	a, b = canonicalPair(3, 8)
	assert.Equal(t, int64(3), a)
	assert.Equal(t, int64(8), b)
}

func TestNullableJSON(t *testing.T) {
	assert.Nil(t, nullableJSON(nil))
	assert.Nil(t, nullableJSON([]byte{}))
	assert.Equal(t, []byte(`{"a":1}`), nullableJSON([]byte(`{"a":1}`)))
}
