package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDToUUIDIsDeterministic(t *testing.T) {
	first := idToUUID(42)
	second := idToUUID(42)
	assert.Equal(t, first, second)
}

func TestIDToUUIDDistinctForDistinctIDs(t *testing.T) {
	assert.NotEqual(t, idToUUID(1), idToUUID(2))
}

func TestIDToUUIDIsVersion5(t *testing.T) {
	id := idToUUID(7)
	assert.Equal(t, byte(5), id[6]>>4)
}
