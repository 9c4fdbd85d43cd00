package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntCodecs(t *testing.T) {
	assert.Equal(t, uint64(0xdeadbeefcafe), BytesToUint64(Uint64ToBytes(0xdeadbeefcafe)))
	assert.Equal(t, uint32(42), BytesToUint32(Uint32ToBytes(42)))
	assert.Equal(t, []byte{0, 0, 1, 0}, Uint32ToBytes(256))
}

func TestRandString(t *testing.T) {
	s := RandString(17)
	assert.Len(t, []rune(s), 17)
	assert.NotContains(t, s, "/")
}
