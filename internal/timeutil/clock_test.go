package timeutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	now := RealClock{}.Now()
	after := time.Now()

	assert.False(t, now.Before(before) || now.After(after), "Now() = %v, expected between %v and %v", now, before, after)
}

func TestStepClock(t *testing.T) {
	start := time.Unix(1700000000, 0)
	c := NewStepClock(start, time.Millisecond)

	a := c.Now()
	b := c.Now()
	assert.Equal(t, start.Add(time.Millisecond), a)
	assert.Equal(t, time.Millisecond, b.Sub(a))
	assert.Equal(t, 2*time.Millisecond, c.Since(start))
}

func TestStepClock_Concurrent(t *testing.T) {
	start := time.Unix(0, 0)
	c := NewStepClock(start, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Now()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50*time.Second, c.Since(start))
}
