package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveReturnsOnlyFreshest(t *testing.T) {
	c := New[int]()
	cur := c.Subscribe()

	c.Publish(1)
	c.Publish(2)
	c.Publish(3)

	v, err := cur.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, uint64(2), cur.Skipped())

	// nothing new: a second call must not hand out v1 or v2
	_, ok := cur.TryReceive()
	assert.False(t, ok)
}

func TestReceiveBlocksUntilPublish(t *testing.T) {
	c := New[string]()
	cur := c.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := cur.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan string, 1)
	go func() {
		v, err := cur.Receive(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	c.Publish("hello")

	select {
	case v := <-got:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("receive did not wake up after publish")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	c := New[int]()
	_ = c.Subscribe() // a consumer that never reads

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100000; i++ {
			c.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked without readers")
	}
	v, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, 99999, v)
}

func TestConsumersAreIndependent(t *testing.T) {
	c := New[int]()
	fast := c.Subscribe()
	slow := c.Subscribe()

	c.Publish(1)
	v, ok := fast.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Publish(2)
	v, ok = fast.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = slow.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, uint64(1), slow.Skipped())
	assert.Equal(t, uint64(0), fast.Skipped())
}

func TestLateSubscriberSeesHeldValue(t *testing.T) {
	c := New[int]()
	c.Publish(7)
	c.Publish(8)

	cur := c.Subscribe()
	v, ok := cur.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 8, v)
	assert.Equal(t, uint64(0), cur.Skipped())
}

func TestReceiveIsMonotonic(t *testing.T) {
	c := New[int]()
	const n = 5000

	var wg sync.WaitGroup
	for k := 0; k < 4; k++ {
		cur := c.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := -1
			for {
				v, err := cur.Receive(context.Background())
				if errors.Is(err, ErrClosed) {
					return
				}
				if !assert.NoError(t, err) {
					return
				}
				assert.Greater(t, v, last)
				last = v
			}
		}()
	}

	for i := 0; i < n; i++ {
		c.Publish(i)
	}
	c.Close()
	wg.Wait()
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	c := New[int]()
	cur := c.Subscribe()
	c.Publish(1)
	c.Close()
	c.Publish(2) // ignored after close

	v, err := cur.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = cur.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, uint64(1), c.Version())
}
