package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLLazyExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewTTL[string](time.Hour)
	c.now = func() time.Time { return now }

	c.Set("ovh:artist:title", "la la la")
	v, ok := c.Get("ovh:artist:title")
	assert.True(t, ok)
	assert.Equal(t, "la la la", v)

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, c.Len(), "expired entries stay until looked up")

	_, ok = c.Get("ovh:artist:title")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLDelete(t *testing.T) {
	c := NewTTL[int](time.Minute)
	c.Set("k", 1)
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}
