package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetGet(t *testing.T) {
	c := New[string, int](Config{DefaultTTL: time.Minute, MaxItems: 10})
	defer c.Close()

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestExpiration(t *testing.T) {
	c := New[string, int](Config{DefaultTTL: 10 * time.Millisecond, MaxItems: 10})
	defer c.Close()

	c.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUEviction(t *testing.T) {
	c := New[string, int](Config{DefaultTTL: time.Minute, MaxItems: 3})
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	// Touch k0 so k1 becomes the eviction candidate.
	_, ok := c.Get("k0")
	assert.True(t, ok)

	c.Set("k3", 3)
	assert.Equal(t, 3, c.Size())

	_, ok = c.Get("k1")
	assert.False(t, ok)
	_, ok = c.Get("k0")
	assert.True(t, ok)
}

func TestOverwriteRefreshes(t *testing.T) {
	c := New[string, int](Config{DefaultTTL: time.Minute, MaxItems: 10})
	defer c.Close()

	c.Set("a", 1)
	c.Set("a", 2)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Size())
}

func TestDeleteAndClear(t *testing.T) {
	c := New[string, int](Config{DefaultTTL: time.Minute, MaxItems: 10})
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
	_, ok := c.Get("b")
	assert.False(t, ok)
}
