package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/config"
	"github.com/xkilldash9x/deskmind/internal/mocks"
)

var (
	notepad1 = schemas.WindowSnapshot{ID: 101, ProcessID: 11, ProcessName: "notepad.exe", Title: "notes.txt - Notepad"}
	notepad2 = schemas.WindowSnapshot{ID: 102, ProcessID: 12, ProcessName: "notepad.exe", Title: "Untitled - Notepad"}
	chrome   = schemas.WindowSnapshot{ID: 201, ProcessID: 21, ProcessName: "chrome.exe", Title: "Inbox - Google Chrome"}
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(zaptest.NewLogger(t), config.IdentityConfig{TitlePrefixLength: 12, MaxHandleAge: time.Hour})
}

func TestAppHandle_NewHandleStartsLost(t *testing.T) {
	h := newTestRegistry(t).Create("notepad", LaunchDescriptor{Executable: "notepad.exe"})

	st := h.State()
	assert.Equal(t, ConfidenceLost, st.Confidence)
	assert.Equal(t, BasisUnknown, st.Basis)
	assert.Empty(t, st.KnownWindowIDs)
	assert.Equal(t, "notepad.exe", h.Launch().Executable)
}

func TestAppHandle_DirectHandleStrategy(t *testing.T) {
	src := NewStaticSource(notepad1, notepad2, chrome)
	h := newTestRegistry(t).Create("notepad", LaunchDescriptor{})
	h.BindWindow(notepad1.ID, notepad1.ProcessID, notepad1.Title)

	res, err := h.Resolve(context.Background(), src, false)
	require.NoError(t, err)
	assert.Equal(t, []schemas.WindowSnapshot{notepad1}, res.Windows, "the bound window wins over other name matches")
	assert.Equal(t, BasisDirectHandle, res.Basis)
	assert.Equal(t, ConfidenceHigh, res.Confidence)
}

func TestAppHandle_ProcessIDStrategy(t *testing.T) {
	// Same process, new window id (e.g. the app recreated its main window).
	reopened := schemas.WindowSnapshot{ID: 150, ProcessID: 11, ProcessName: "notepad.exe", Title: "notes.txt - Notepad"}
	src := NewStaticSource(reopened, notepad2)
	h := newTestRegistry(t).Create("notepad", LaunchDescriptor{})
	h.BindWindow(notepad1.ID, notepad1.ProcessID, notepad1.Title)

	res, err := h.Resolve(context.Background(), src, false)
	require.NoError(t, err)
	assert.Equal(t, []schemas.WindowSnapshot{reopened}, res.Windows)
	assert.Equal(t, BasisProcessID, res.Basis)
	assert.Equal(t, ConfidenceMedium, res.Confidence)
	assert.Equal(t, []uint64{notepad1.ID}, h.State().KnownWindowIDs, "no rebinding without permission")
}

func TestAppHandle_NameMatchStrategy(t *testing.T) {
	src := NewStaticSource(notepad2, chrome)
	h := newTestRegistry(t).Create("Notepad", LaunchDescriptor{})
	h.BindWindow(notepad1.ID, notepad1.ProcessID, notepad1.Title)

	t.Run("without rebinding", func(t *testing.T) {
		res, err := h.Resolve(context.Background(), src, false)
		require.NoError(t, err)
		assert.Equal(t, []schemas.WindowSnapshot{notepad2}, res.Windows)
		assert.Equal(t, BasisNameMatch, res.Basis)
		assert.Equal(t, ConfidenceMedium, res.Confidence)
		assert.Equal(t, []uint64{notepad1.ID}, h.State().KnownWindowIDs)
		assert.Equal(t, notepad1.Title, h.State().LastTitle)
	})

	t.Run("with rebinding", func(t *testing.T) {
		_, err := h.Resolve(context.Background(), src, true)
		require.NoError(t, err)
		assert.Equal(t, []uint64{notepad2.ID}, h.State().KnownWindowIDs)
		assert.Equal(t, []int{notepad2.ProcessID}, h.State().KnownProcessIDs)
	})

	t.Run("rebound handle never regains high confidence", func(t *testing.T) {
		res, err := h.Resolve(context.Background(), src, false)
		require.NoError(t, err)
		assert.Equal(t, BasisDirectHandle, res.Basis)
		assert.Equal(t, ConfidenceMedium, res.Confidence)
	})
}

func TestAppHandle_TitleFallbackStrategy(t *testing.T) {
	// The process was renamed (e.g. a launcher stub) but the title survived.
	renamed := schemas.WindowSnapshot{ID: 301, ProcessID: 31, ProcessName: "host.exe", Title: "notes.txt - Notepad (2)"}
	src := NewStaticSource(renamed, chrome)
	h := newTestRegistry(t).Create("notepad", LaunchDescriptor{})
	h.BindWindow(notepad1.ID, notepad1.ProcessID, notepad1.Title)

	res, err := h.Resolve(context.Background(), src, false)
	require.NoError(t, err)
	assert.Equal(t, []schemas.WindowSnapshot{renamed}, res.Windows)
	assert.Equal(t, BasisTitleFallback, res.Basis)
	assert.Equal(t, ConfidenceDegraded, res.Confidence)
	assert.Equal(t, []uint64{notepad1.ID}, h.State().KnownWindowIDs)

	_, err = h.Resolve(context.Background(), src, true)
	require.NoError(t, err)
	assert.Equal(t, []uint64{renamed.ID}, h.State().KnownWindowIDs)

	res, err = h.Resolve(context.Background(), src, false)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceDegraded, res.Confidence, "a title-rebound handle stays degraded")
}

func TestAppHandle_TotalLoss(t *testing.T) {
	src := NewStaticSource(chrome)
	h := newTestRegistry(t).Create("notepad", LaunchDescriptor{})
	h.BindWindow(notepad1.ID, notepad1.ProcessID, notepad1.Title)

	res, err := h.Resolve(context.Background(), src, true)
	require.NoError(t, err)
	assert.Empty(t, res.Windows)
	assert.Equal(t, BasisUnknown, res.Basis)
	assert.Equal(t, ConfidenceLost, res.Confidence)
	assert.Equal(t, ConfidenceLost, h.State().Confidence)
}

func TestAppHandle_Invalidate(t *testing.T) {
	src := NewStaticSource(notepad1)
	h := newTestRegistry(t).Create("notepad", LaunchDescriptor{})
	h.BindWindow(notepad1.ID, notepad1.ProcessID, notepad1.Title)

	h.Invalidate()
	st := h.State()
	assert.Equal(t, ConfidenceLost, st.Confidence)
	assert.Equal(t, BasisUnknown, st.Basis)
	assert.Empty(t, st.KnownWindowIDs)

	// The window is still alive, but only a name match can find it now.
	res, err := h.Resolve(context.Background(), src, false)
	require.NoError(t, err)
	assert.Equal(t, BasisNameMatch, res.Basis)
}

func TestAppHandle_ResolveUnique(t *testing.T) {
	ctx := context.Background()

	t.Run("single match", func(t *testing.T) {
		h := newTestRegistry(t).Create("chrome", LaunchDescriptor{})
		w, _, err := h.ResolveUnique(ctx, NewStaticSource(chrome, notepad1))
		require.NoError(t, err)
		assert.Equal(t, chrome, w)
	})

	t.Run("ambiguous", func(t *testing.T) {
		h := newTestRegistry(t).Create("notepad", LaunchDescriptor{})
		_, res, err := h.ResolveUnique(ctx, NewStaticSource(notepad1, notepad2))
		var amb *AmbiguityError
		require.ErrorAs(t, err, &amb)
		assert.ElementsMatch(t, []schemas.WindowSnapshot{notepad1, notepad2}, amb.Candidates)
		assert.Len(t, res.Windows, 2)
		assert.Empty(t, h.State().KnownWindowIDs, "ambiguity must not bind anything")
	})

	t.Run("lost", func(t *testing.T) {
		h := newTestRegistry(t).Create("notepad", LaunchDescriptor{})
		_, _, err := h.ResolveUnique(ctx, NewStaticSource(chrome))
		assert.ErrorIs(t, err, ErrLost)
	})
}

func TestAppHandle_SourceErrorLeavesStateUnchanged(t *testing.T) {
	src := new(mocks.MockWindowSource)
	src.On("Window", mock.Anything, notepad1.ID).Return(schemas.WindowSnapshot{}, false, nil)
	src.On("ListWindows", mock.Anything).Return(nil, errors.New("backend unavailable"))

	h := newTestRegistry(t).Create("notepad", LaunchDescriptor{})
	h.BindWindow(notepad1.ID, notepad1.ProcessID, notepad1.Title)
	before := h.State()

	_, err := h.Resolve(context.Background(), src, true)
	assert.ErrorContains(t, err, "backend unavailable")
	assert.Equal(t, before, h.State())
	src.AssertExpectations(t)
}

func TestConfidence_Rank(t *testing.T) {
	assert.Greater(t, ConfidenceHigh.Rank(), ConfidenceMedium.Rank())
	assert.Greater(t, ConfidenceMedium.Rank(), ConfidenceDegraded.Rank())
	assert.Greater(t, ConfidenceDegraded.Rank(), ConfidenceLost.Rank())
	assert.Equal(t, 0, Confidence("bogus").Rank())
}
