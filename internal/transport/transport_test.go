package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rpy_stream/internal/imu"
	"github.com/relabs-tech/rpy_stream/internal/stream"
	"github.com/relabs-tech/rpy_stream/internal/wire"
)

func TestBindErrorWhenAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = NewPublisher(ln.Addr().String(), "/imu", stream.New[imu.Sample]())
	require.Error(t, err)

	var be *BindError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, ln.Addr().String(), be.Addr)
	assert.NotNil(t, errors.Unwrap(err))
}

func startPublisher(t *testing.T, ch *stream.Conflated[imu.Sample]) (*Publisher, context.Context) {
	t.Helper()
	pub, err := NewPublisher("127.0.0.1:0", "/imu", ch)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pub.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return pub, ctx
}

func TestPublisherToSubscribers(t *testing.T) {
	ch := stream.New[imu.Sample]()
	pub, ctx := startPublisher(t, ch)
	url := "ws://" + pub.Addr().String() + "/imu"

	outA := stream.New[string]()
	outB := stream.New[string]()
	go NewSubscriber(url, 20*time.Millisecond, outA).Run(ctx)
	go NewSubscriber(url, 20*time.Millisecond, outB).Run(ctx)
	curA := outA.Subscribe()
	curB := outB.Subscribe()

	require.Eventually(t, func() bool { return pub.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	s := imu.Sample{
		TimestampMS: 1000.25,
		Accel:       imu.Vec3{Z: 1},
		Gyro:        imu.Vec3{X: 0.01},
		Mag:         imu.Vec3{X: 20, Z: -40},
	}
	ch.Publish(s)

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for _, cur := range []*stream.Cursor[string]{curA, curB} {
		rec, err := cur.Receive(rctx)
		require.NoError(t, err)
		assert.Equal(t, wire.Encode(s), rec)
	}

	s.TimestampMS = 1010.25
	ch.Publish(s)
	rec, err := curA.Receive(rctx)
	require.NoError(t, err)
	got, err := wire.Decode(rec)
	require.NoError(t, err)
	assert.Equal(t, 1010.25, got.TimestampMS)
}

func TestSubscriberRetriesUntilPublisherAppears(t *testing.T) {
	// reserve a port, release it, then bring the publisher up late
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := stream.New[string]()
	cur := out.Subscribe()
	go NewSubscriber("ws://"+addr+"/imu", 20*time.Millisecond, out).Run(ctx)

	time.Sleep(50 * time.Millisecond)

	ch := stream.New[imu.Sample]()
	ch.Publish(imu.Sample{TimestampMS: 1, Accel: imu.Vec3{Z: 1}})
	pub, err := NewPublisher(addr, "/imu", ch)
	require.NoError(t, err)
	go pub.Serve(ctx)

	rctx, rcancel := context.WithTimeout(ctx, 3*time.Second)
	defer rcancel()
	rec, err := cur.Receive(rctx)
	require.NoError(t, err)
	assert.Equal(t, "1,0,0,1,0,0,0,0,0,0", rec)
}

func TestSubscriberStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewSubscriber("ws://127.0.0.1:1/imu", 10*time.Millisecond, stream.New[string]()).Run(ctx)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
