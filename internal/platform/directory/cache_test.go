package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	keys    map[string]time.Duration
	readErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: make(map[string]time.Duration)}
}

func (s *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	if s.readErr != nil {
		return false, s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *fakeStore) Mark(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = ttl
	return nil
}

type countingVerifier struct {
	calls  atomic.Int32
	status Status
	err    error
	delay  time.Duration
}

func (c *countingVerifier) Verify(ctx context.Context, _ Kind, _ int64, _ string) (Status, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.status, c.err
}

func TestCachingVerifier_CachesPositive(t *testing.T) {
	next := &countingVerifier{status: Exists}
	store := newFakeStore()
	v := NewCachingVerifier(next, store, time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		got, err := v.Verify(context.Background(), KindDoctor, 4, "tok")
		require.NoError(t, err)
		assert.Equal(t, Exists, got)
	}
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, time.Minute, store.keys[cacheKey(KindDoctor, 4, "tok")])
}

func TestCachingVerifier_NegativeNotCached(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		err    error
	}{
		{"not found", NotFound, nil},
		{"unreachable", Unreachable, errors.New("connection refused")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &countingVerifier{status: tt.status, err: tt.err}
			store := newFakeStore()
			v := NewCachingVerifier(next, store, time.Minute, zerolog.Nop())

			for i := 0; i < 2; i++ {
				got, err := v.Verify(context.Background(), KindPatient, 1, "tok")
				assert.Equal(t, tt.status, got)
				assert.Equal(t, tt.err, err)
			}
			assert.Equal(t, int32(2), next.calls.Load())
			assert.Empty(t, store.keys)
		})
	}
}

func TestCachingVerifier_KeyedByCredential(t *testing.T) {
	next := &countingVerifier{status: Exists}
	v := NewCachingVerifier(next, newFakeStore(), time.Minute, zerolog.Nop())

	_, _ = v.Verify(context.Background(), KindCenter, 1, "alice")
	_, _ = v.Verify(context.Background(), KindCenter, 1, "bob")

	assert.Equal(t, int32(2), next.calls.Load())
	assert.NotEqual(t, cacheKey(KindCenter, 1, "alice"), cacheKey(KindCenter, 1, "bob"))
}

func TestCachingVerifier_StoreFailureFallsThrough(t *testing.T) {
	next := &countingVerifier{status: Exists}
	store := newFakeStore()
	store.readErr = errors.New("redis down")
	v := NewCachingVerifier(next, store, time.Minute, zerolog.Nop())

	got, err := v.Verify(context.Background(), KindDoctor, 1, "tok")
	require.NoError(t, err)
	assert.Equal(t, Exists, got)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestCachingVerifier_CollapsesConcurrentLookups(t *testing.T) {
	next := &countingVerifier{status: Exists, delay: 100 * time.Millisecond}
	v := NewCachingVerifier(next, newFakeStore(), time.Minute, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := v.Verify(context.Background(), KindDoctor, 9, "tok")
			assert.NoError(t, err)
			assert.Equal(t, Exists, got)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, next.calls.Load(), int32(2))
}

func TestCachingVerifier_CallerCancelled(t *testing.T) {
	next := &countingVerifier{status: Exists, delay: 200 * time.Millisecond}
	v := NewCachingVerifier(next, newFakeStore(), time.Minute, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := v.Verify(ctx, KindPatient, 1, "tok")
	assert.Equal(t, Unreachable, got)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ctxVerifier answers Exists after delay unless ctx ends first.
type ctxVerifier struct {
	calls   atomic.Int32
	delay   time.Duration
	started chan struct{}
}

func (c *ctxVerifier) Verify(ctx context.Context, _ Kind, _ int64, _ string) (Status, error) {
	c.calls.Add(1)
	select {
	case c.started <- struct{}{}:
	default:
	}
	select {
	case <-time.After(c.delay):
		return Exists, nil
	case <-ctx.Done():
		return Unreachable, ctx.Err()
	}
}

func TestCachingVerifier_SharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	next := &ctxVerifier{delay: 100 * time.Millisecond, started: make(chan struct{}, 1)}
	v := NewCachingVerifier(next, newFakeStore(), time.Minute, zerolog.Nop())

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	errA := make(chan error, 1)
	go func() {
		_, err := v.Verify(ctxA, KindDoctor, 5, "tok")
		errA <- err
	}()
	<-next.started

	type result struct {
		status Status
		err    error
	}
	resB := make(chan result, 1)
	go func() {
		got, err := v.Verify(context.Background(), KindDoctor, 5, "tok")
		resB <- result{got, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelA()

	assert.ErrorIs(t, <-errA, context.Canceled)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, Exists, b.status)
	assert.Equal(t, int32(1), next.calls.Load())
}
