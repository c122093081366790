package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenHasher_Hash(t *testing.T) {
	h := NewTokenHasher()

	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", h.Hash(""))
	assert.Equal(t, "8b0463093f9e78e40958eea1c5489570066d01f7187c310c7a051c1df9ccf171", h.Hash("сессия-1"))
	assert.NotEqual(t, h.Hash("session-1"), h.Hash("session-2"))
}

func TestTokenHasher_Verify(t *testing.T) {
	h := NewTokenHasher()
	digest := h.Hash("transaction-42")

	assert.True(t, h.Verify("transaction-42", digest))
	assert.False(t, h.Verify("transaction-43", digest))
	assert.False(t, h.Verify("transaction-42", ""))
}
