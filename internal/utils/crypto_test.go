package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashBytes(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashBytes([]byte("abc")))
}

func TestValidateFileHash(t *testing.T) {
	data := []byte("%PDF-1.4 body")
	assert.True(t, ValidateFileHash(data, HashBytes(data)))
	assert.False(t, ValidateFileHash(data, HashBytes([]byte("other"))))
}
