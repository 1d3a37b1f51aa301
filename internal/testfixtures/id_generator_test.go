package testfixtures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("block")

	assert.Equal(t, "block-1", gen.Next())
	assert.Equal(t, "block-2", gen.NextFunc()())
}

func TestSequenceRepeatsLastValue(t *testing.T) {
	next := Sequence("a", "b")

	for _, want := range []string{"a", "b", "b"} {
		got, err := next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := Sequence()()
	assert.Error(t, err)
}
