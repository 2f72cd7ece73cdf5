package segment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/mocks"
)

var (
	tier1 = mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.SystemPrompt == segmentSystemPrompt
	})
	tier2 = mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.SystemPrompt == dependencySystemPrompt
	})
)

func setupSegmenter(t *testing.T) (*Segmenter, *mocks.MockLLMClient) {
	t.Helper()
	llm := new(mocks.MockLLMClient)
	return NewSegmenter(zaptest.NewLogger(t), llm, time.Second, nil), llm
}

func TestSegment_OpenAndType(t *testing.T) {
	s, llm := setupSegmenter(t)
	llm.On("Generate", mock.Anything, tier1).
		Return(`{"multi": true, "actions": [{"description": "open notepad"}, {"description": "type hello"}]}`, nil).Once()
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.SystemPrompt == dependencySystemPrompt &&
			strings.Contains(req.UserPrompt, "a1: open notepad") &&
			strings.Contains(req.UserPrompt, "a2: type hello")
	})).Return(`{"dependencies": [{"action": "a2", "depends_on": ["a1"]}]}`, nil).Once()

	got := s.Segment(context.Background(), "open notepad and type hello")

	want := schemas.SegmentationResult{
		Multi: true,
		Actions: []schemas.Action{
			{ID: "a1", Description: "open notepad"},
			{ID: "a2", Description: "type hello", DependsOnPrevious: true, DependsOn: []string{"a1"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Segment() mismatch (-want +got):\n%s", diff)
	}
	llm.AssertExpectations(t)
}

func TestSegment_SingleAtomicFileWrite(t *testing.T) {
	s, llm := setupSegmenter(t)
	llm.On("Generate", mock.Anything, tier1).
		Return(`{"multi": false, "actions": [{"description": "write hello world into notes.txt"}]}`, nil).Once()

	got := s.Segment(context.Background(), "write hello world into notes.txt")

	assert.False(t, got.Multi)
	assert.False(t, got.Fallback)
	require.Len(t, got.Actions, 1)
	assert.Equal(t, "a1", got.Actions[0].ID)
	// No second tier for a single action.
	llm.AssertNotCalled(t, "Generate", mock.Anything, tier2)
}

func TestSegment_ForcesMultiWhenEntriesDisagreeWithFlag(t *testing.T) {
	s, llm := setupSegmenter(t)
	llm.On("Generate", mock.Anything, tier1).
		Return(`{"multi": false, "actions": [{"description": "mute"}, {"description": "lock the screen", "is_optional": true}]}`, nil).Once()
	llm.On("Generate", mock.Anything, tier2).Return(`{"dependencies": []}`, nil).Once()

	got := s.Segment(context.Background(), "mute and maybe lock the screen")

	assert.True(t, got.Multi)
	require.Len(t, got.Actions, 2)
	assert.True(t, got.Actions[1].IsOptional)
	assert.Empty(t, got.Actions[1].DependsOn)
}

func TestSegment_DropsInvalidEdges(t *testing.T) {
	s, llm := setupSegmenter(t)
	llm.On("Generate", mock.Anything, tier1).
		Return(`{"multi": true, "actions": [{"description": "open chrome"}, {"description": "open notepad"}, {"description": "type hi"}]}`, nil).Once()
	llm.On("Generate", mock.Anything, tier2).Return(`{"dependencies": [
		{"action": "a1", "depends_on": ["a3"]},
		{"action": "a2", "depends_on": ["a2", "a9"]},
		{"action": "a3", "depends_on": ["a2", "a2"]},
		{"action": "a7", "depends_on": ["a1"]}
	]}`, nil).Once()

	got := s.Segment(context.Background(), "open chrome, open notepad and type hi")

	require.Len(t, got.Actions, 3)
	assert.Empty(t, got.Actions[0].DependsOn)
	assert.Empty(t, got.Actions[1].DependsOn)
	assert.Equal(t, []string{"a2"}, got.Actions[2].DependsOn)
	assert.True(t, got.Actions[2].DependsOnPrevious)
}

func TestSegment_NonAdjacentDependency(t *testing.T) {
	s, llm := setupSegmenter(t)
	llm.On("Generate", mock.Anything, tier1).
		Return(`{"multi": true, "actions": [{"description": "open word"}, {"description": "take a screenshot"}, {"description": "type the title"}]}`, nil).Once()
	llm.On("Generate", mock.Anything, tier2).
		Return(`{"dependencies": [{"action": "a3", "depends_on": ["a1"]}]}`, nil).Once()

	got := s.Segment(context.Background(), "open word, take a screenshot, then type the title")

	assert.Equal(t, []string{"a1"}, got.Actions[2].DependsOn)
	assert.False(t, got.Actions[2].DependsOnPrevious)
}

func TestSegment_FallbackPassthrough(t *testing.T) {
	const text = "open notepad and type hello"
	tests := []struct {
		name      string
		setup     func(llm *mocks.MockLLMClient)
		wantError string
	}{
		{
			name: "tier one inference failure",
			setup: func(llm *mocks.MockLLMClient) {
				llm.On("Generate", mock.Anything, tier1).Return("", errors.New("provider down")).Once()
			},
			wantError: string(schemas.FailureInference),
		},
		{
			name: "tier one malformed",
			setup: func(llm *mocks.MockLLMClient) {
				llm.On("Generate", mock.Anything, tier1).Return(`{"multi": "yes"}`, nil).Once()
			},
			wantError: string(schemas.FailureValidation),
		},
		{
			name: "tier one blank descriptions",
			setup: func(llm *mocks.MockLLMClient) {
				llm.On("Generate", mock.Anything, tier1).Return(`{"multi": true, "actions": [{"description": " "}]}`, nil).Once()
			},
			wantError: string(schemas.FailureValidation),
		},
		{
			name: "tier two names a tool",
			setup: func(llm *mocks.MockLLMClient) {
				llm.On("Generate", mock.Anything, tier1).
					Return(`{"multi": true, "actions": [{"description": "open notepad"}, {"description": "type hello"}]}`, nil).Once()
				llm.On("Generate", mock.Anything, tier2).
					Return(`{"dependencies": [{"action": "a2", "depends_on": ["a1"], "tool": "input.type_text"}]}`, nil).Once()
			},
			wantError: "forbidden field",
		},
		{
			name: "tier two carries confidence at the top level",
			setup: func(llm *mocks.MockLLMClient) {
				llm.On("Generate", mock.Anything, tier1).
					Return(`{"multi": true, "actions": [{"description": "open notepad"}, {"description": "type hello"}]}`, nil).Once()
				llm.On("Generate", mock.Anything, tier2).
					Return(`{"dependencies": [], "Confidence": 0.9}`, nil).Once()
			},
			wantError: "forbidden field",
		},
		{
			name: "tier two inference failure",
			setup: func(llm *mocks.MockLLMClient) {
				llm.On("Generate", mock.Anything, tier1).
					Return(`{"multi": true, "actions": [{"description": "open notepad"}, {"description": "type hello"}]}`, nil).Once()
				llm.On("Generate", mock.Anything, tier2).Return("", context.DeadlineExceeded).Once()
			},
			wantError: string(schemas.FailureInference),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, llm := setupSegmenter(t)
			tt.setup(llm)

			got := s.Segment(context.Background(), text)

			assert.True(t, got.Fallback)
			assert.False(t, got.Multi)
			assert.Equal(t, []schemas.Action{{ID: "a1", Description: text}}, got.Actions)
			assert.Contains(t, got.Error, tt.wantError)
			llm.AssertExpectations(t)
		})
	}
}

func TestSegment_EmptyText(t *testing.T) {
	s, llm := setupSegmenter(t)
	got := s.Segment(context.Background(), "  ")
	assert.True(t, got.Fallback)
	assert.Equal(t, "empty request", got.Error)
	llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestFindForbidden(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{name: "clean", input: map[string]interface{}{"dependencies": []interface{}{map[string]interface{}{"action": "a2"}}}},
		{name: "nested in array", input: map[string]interface{}{"dependencies": []interface{}{map[string]interface{}{"params": map[string]interface{}{}}}}, want: "params"},
		{name: "case insensitive", input: map[string]interface{}{"Intent": "x"}, want: "Intent"},
		{name: "values are not keys", input: map[string]interface{}{"action": "tool"}},
		{name: "scalar", input: "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, found := findForbidden(tt.input)
			assert.Equal(t, tt.want != "", found)
			assert.Equal(t, tt.want, field)
		})
	}
}
