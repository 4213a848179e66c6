package atomic_clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApi(t *testing.T) {
	c := Now()
	tim := time.Now()
	const delta = 100 * time.Millisecond

	assert.InDelta(t, tim.UnixNano(), c.UnixNano(), float64(delta))
	assert.InDelta(t, tim.Unix(), c.Unix(), 1)

	c.SetTime(tim)
	assert.Equal(t, tim.UnixNano(), c.UnixNano())
	assert.True(t, tim.Equal(c.Time()))

	c.SetNow()
	assert.True(t, Since(c) < delta)
}

func TestZero(t *testing.T) {
	var c Clock
	assert.True(t, c.IsZero())
	assert.True(t, c.Time().IsZero())
	_, ok := c.Age()
	assert.False(t, ok)

	c.SetNowIfZero()
	first := c.UnixNano()
	assert.NotZero(t, first)
	c.SetNowIfZero()
	assert.Equal(t, first, c.UnixNano())
	age, ok := c.Age()
	assert.True(t, ok)
	assert.True(t, age >= 0)
}

func TestConcurrent(t *testing.T) {
	var c Clock
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.SetNow()
				_, _ = c.Age()
			}
		}()
	}
	wg.Wait()
	assert.False(t, c.IsZero())
}
