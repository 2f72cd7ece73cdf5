package identity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/deskmind/api/schemas"
)

func TestRegistry_CreateLookupRemove(t *testing.T) {
	r := newTestRegistry(t)
	h := r.Create("notepad", LaunchDescriptor{})

	got, ok := r.Lookup(h.ID())
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Remove(h.ID()))
	assert.False(t, r.Remove(h.ID()))
	_, ok = r.Lookup(h.ID())
	assert.False(t, ok)
}

func TestRegistry_PredictableIDs(t *testing.T) {
	orig := newHandleID
	t.Cleanup(func() { newHandleID = orig })
	n := 0
	newHandleID = func() string {
		n++
		return fmt.Sprintf("handle-%d", n)
	}

	r := newTestRegistry(t)
	assert.Equal(t, "handle-1", r.Create("a", LaunchDescriptor{}).ID())
	assert.Equal(t, "handle-2", r.Create("b", LaunchDescriptor{}).ID())
}

func TestRegistry_FindByName(t *testing.T) {
	r := newTestRegistry(t)
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	older := r.Create("Notepad.exe", LaunchDescriptor{})
	clock = clock.Add(time.Minute)
	newer := r.Create("notepad", LaunchDescriptor{})
	r.Create("chrome", LaunchDescriptor{})

	found := r.FindByName("NOTEPAD")
	require.Len(t, found, 2)
	assert.Same(t, newer, found[0])
	assert.Same(t, older, found[1])
}

func TestRegistry_Resolve(t *testing.T) {
	r := newTestRegistry(t)
	h := r.Create("notepad", LaunchDescriptor{})
	h.BindWindow(notepad1.ID, notepad1.ProcessID, notepad1.Title)

	res, err := r.Resolve(context.Background(), h.ID(), NewStaticSource(notepad1), false)
	require.NoError(t, err)
	assert.Equal(t, BasisDirectHandle, res.Basis)

	_, err = r.Resolve(context.Background(), "nope", NewStaticSource(), false)
	assert.ErrorIs(t, err, ErrHandleNotFound)
}

func TestRegistry_Prune(t *testing.T) {
	r := newTestRegistry(t)
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	stale := r.Create("stale", LaunchDescriptor{})
	active := r.Create("active", LaunchDescriptor{})

	clock = clock.Add(90 * time.Minute)
	// Resolution counts as activity.
	active.BindWindow(1, 1, "x")

	clock = clock.Add(10 * time.Minute)
	assert.Equal(t, 1, r.Prune(time.Hour))

	_, ok := r.Lookup(stale.ID())
	assert.False(t, ok)
	_, ok = r.Lookup(active.ID())
	assert.True(t, ok)
}

func TestRegistry_StartPruner(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := newTestRegistry(t)
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	r.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}
	r.Create("stale", LaunchDescriptor{})

	clockMu.Lock()
	clock = clock.Add(2 * time.Hour)
	clockMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := r.StartPruner(ctx, 5*time.Millisecond, time.Hour)

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRegistry_ConcurrentResolutionOfDifferentHandles(t *testing.T) {
	r := newTestRegistry(t)
	src := NewStaticSource(notepad1, notepad2, chrome)

	handles := make([]*AppHandle, 0, 20)
	for i := 0; i < 20; i++ {
		h := r.Create("notepad", LaunchDescriptor{})
		if i%2 == 0 {
			h.BindWindow(notepad1.ID, notepad1.ProcessID, notepad1.Title)
		}
		handles = append(handles, h)
	}

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *AppHandle) {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), h.ID(), src, true)
			assert.NoError(t, err)
		}(h)
	}
	// Lifetime operations run alongside resolution.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			r.Create("chrome", LaunchDescriptor{})
			r.FindByName("notepad")
			r.Prune(24 * time.Hour)
		}
	}()
	wg.Wait()

	assert.Equal(t, 40, r.Len())
}

// blockingSource parks Window calls until release is closed.
type blockingSource struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	window  schemas.WindowSnapshot
}

func (s *blockingSource) ListWindows(ctx context.Context) ([]schemas.WindowSnapshot, error) {
	return []schemas.WindowSnapshot{s.window}, nil
}

func (s *blockingSource) Window(ctx context.Context, id uint64) (schemas.WindowSnapshot, bool, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.window, id == s.window.ID, nil
}

func TestRegistry_PruneDoesNotStallLookupsDuringResolution(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := newTestRegistry(t)
	a := r.Create("notepad", LaunchDescriptor{})
	a.BindWindow(notepad1.ID, notepad1.ProcessID, notepad1.Title)
	b := r.Create("chrome", LaunchDescriptor{})

	src := &blockingSource{entered: make(chan struct{}), release: make(chan struct{}), window: notepad1}
	resolved := make(chan error, 1)
	go func() {
		_, err := a.Resolve(context.Background(), src, false)
		resolved <- err
	}()
	<-src.entered

	pruned := make(chan int, 1)
	go func() { pruned <- r.Prune(time.Hour) }()
	// Give Prune time to reach the handle that is mid-resolution.
	time.Sleep(20 * time.Millisecond)

	looked := make(chan bool, 1)
	go func() {
		_, ok := r.Lookup(b.ID())
		r.FindByName("chrome")
		r.Create("explorer", LaunchDescriptor{})
		looked <- ok
	}()

	finished := false
	select {
	case ok := <-looked:
		finished = true
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Error("registry operations on other handles blocked while a handle was resolving")
	}

	close(src.release)
	require.NoError(t, <-resolved)
	assert.Equal(t, 0, <-pruned)
	if !finished {
		<-looked
	}
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_PruneIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	stale := r.Create("notepad", LaunchDescriptor{})
	clock = clock.Add(2 * time.Hour)
	assert.Equal(t, 1, r.Prune(time.Hour))
	_, ok := r.Lookup(stale.ID())
	assert.False(t, ok)

	assert.Equal(t, 0, r.Prune(time.Hour))
}
