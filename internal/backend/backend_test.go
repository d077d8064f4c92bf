package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	Connector
	closed atomic.Int32
}

func (f *fakeConn) Close() error {
	f.closed.Add(1)
	return nil
}

type fakeFinder struct{ *fakeConn }

func (fakeFinder) FindIdentityByEmail(context.Context, string) (*Identity, error) { return nil, nil }

type countingFactory struct {
	mu    sync.Mutex
	dials int
	conns []*fakeConn
	err   error
	delay time.Duration
}

func (f *countingFactory) Connect(ctx context.Context, u, k string) (Connector, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{}
	f.conns = append(f.conns, c)
	return c, nil
}

func TestConnect_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	cases := []struct{ url, key string }{
		{"", "k"},
		{"https://x.supabase.co", ""},
		{"   ", "  "},
		{"://bad", "k"},
		{"no-scheme", "k"},
		{"gopher://x", "k"},
	}
	for _, c := range cases {
		_, err := Connect(ctx, c.url, c.key, Options{})
		require.ErrorIs(t, err, ErrInvalidCredentials, "url=%q key=%q", c.url, c.key)
	}
}

func TestRegisterDriver_Duplicate(t *testing.T) {
	RegisterDriver(func(context.Context, Params) (Connector, error) { return &fakeConn{}, nil }, "test-dup")
	require.Contains(t, Schemes(), "test-dup")
	require.Panics(t, func() {
		RegisterDriver(func(context.Context, Params) (Connector, error) { return nil, nil }, "TEST-DUP")
	})
}

func TestDriverErrorIsInvalidCredentials(t *testing.T) {
	RegisterDriver(func(context.Context, Params) (Connector, error) { return nil, errors.New("bad dsn") }, "test-err")
	_, err := Connect(context.Background(), "test-err://h", "k", Options{})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAsFinder(t *testing.T) {
	p := NewPool(&countingFactory{}, time.Minute)
	defer p.Close()

	_, ok := AsFinder(&fakeConn{})
	require.False(t, ok)
	_, ok = AsFinder(fakeFinder{&fakeConn{}})
	require.True(t, ok)
	_, ok = AsFinder(&lease{Connector: fakeFinder{&fakeConn{}}})
	require.True(t, ok)
}

func TestPool_ReusesAndSeparatesByKey(t *testing.T) {
	ctx := context.Background()
	f := &countingFactory{}
	p := NewPool(f, time.Minute)
	defer p.Close()

	a1, err := p.Connect(ctx, "mem://a", "k1")
	require.NoError(t, err)
	require.NoError(t, a1.Close())
	a2, err := p.Connect(ctx, "mem://a", "k1")
	require.NoError(t, err)
	require.NoError(t, a2.Close())
	require.Equal(t, 1, f.dials)

	rotated, err := p.Connect(ctx, "mem://a", "k2")
	require.NoError(t, err)
	require.NoError(t, rotated.Close())
	require.Equal(t, 2, f.dials)
	require.Equal(t, 2, p.Len())
	require.Zero(t, f.conns[0].closed.Load(), "lease close must not close the connector")
}

func TestPool_SingleflightDial(t *testing.T) {
	ctx := context.Background()
	f := &countingFactory{delay: 20 * time.Millisecond}
	p := NewPool(f, time.Minute)
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.Connect(ctx, "mem://x", "k")
			if err == nil {
				_ = c.Close()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, f.dials)
}

func TestPool_DialError(t *testing.T) {
	f := &countingFactory{err: ErrInvalidCredentials}
	p := NewPool(f, time.Minute)
	defer p.Close()
	_, err := p.Connect(context.Background(), "mem://x", "k")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Zero(t, p.Len())
}

func TestPool_CloseWaitsForLeases(t *testing.T) {
	ctx := context.Background()
	f := &countingFactory{}
	p := NewPool(f, time.Minute)

	held, err := p.Connect(ctx, "mem://x", "k")
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.Zero(t, f.conns[0].closed.Load())

	require.NoError(t, held.Close())
	require.NoError(t, held.Close(), "double release is a no-op")
	require.EqualValues(t, 1, f.conns[0].closed.Load())
}

func TestPool_ExpiredEntryClosedOnRedial(t *testing.T) {
	ctx := context.Background()
	f := &countingFactory{}
	p := NewPool(f, 50*time.Millisecond)

	c, err := p.Connect(ctx, "mem://x", "k")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	// vence antes de que corra el janitor (cleanup mínimo 1s)
	time.Sleep(120 * time.Millisecond)

	c, err = p.Connect(ctx, "mem://x", "k")
	require.NoError(t, err)
	require.Equal(t, 2, f.dials)
	require.EqualValues(t, 1, f.conns[0].closed.Load())
	require.Zero(t, f.conns[1].closed.Load())
	require.NoError(t, c.Close())
}

func TestPool_CloseSweepsExpired(t *testing.T) {
	ctx := context.Background()
	f := &countingFactory{}
	p := NewPool(f, 50*time.Millisecond)

	c, err := p.Connect(ctx, "mem://x", "k")
	require.NoError(t, err)
	require.NoError(t, c.Close())
	time.Sleep(120 * time.Millisecond)

	require.NoError(t, p.Close())
	require.EqualValues(t, 1, f.conns[0].closed.Load())
}
