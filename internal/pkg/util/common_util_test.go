package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginAllowed(t *testing.T) {
	assert.True(t, OriginAllowed(nil, "http://a"))
	assert.True(t, OriginAllowed([]string{"*"}, "http://a"))
	assert.True(t, OriginAllowed([]string{"http://a", "http://b"}, "http://b"))
	assert.False(t, OriginAllowed([]string{"http://a"}, "http://c"))
}
