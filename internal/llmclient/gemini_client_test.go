package llmclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/xkilldash9x/deskmind/api/schemas"
)

func TestNewGeminiClient_Validation(t *testing.T) {
	logger, _ := setupTestLogger(t)
	ctx := context.Background()

	t.Run("missing api key", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.APIKey = ""
		client, err := NewGeminiClient(ctx, cfg, logger)
		assert.Nil(t, client)
		assert.ErrorContains(t, err, "API key is required")
	})

	t.Run("missing model", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.Model = ""
		client, err := NewGeminiClient(ctx, cfg, logger)
		assert.Nil(t, client)
		assert.ErrorContains(t, err, "model name is required")
	})

	t.Run("valid", func(t *testing.T) {
		client, err := NewGeminiClient(ctx, getValidLLMConfig(), logger)
		require.NoError(t, err)
		require.NotNil(t, client)
		assert.NoError(t, client.Close())
	})
}

func TestGeminiClient_Generate_Success(t *testing.T) {
	logger, logs := setupTestLogger(t)
	gen := new(mockGenerator)
	client := newGeminiClient(gen, getValidLLMConfig(), logger)

	req := schemas.GenerationRequest{
		SystemPrompt: "classify",
		UserPrompt:   "open notepad",
		Options:      schemas.GenerationOptions{Temperature: 0.1, ForceJSONFormat: true},
	}

	gen.On("GenerateContent", mock.Anything, "test-model", mock.Anything, mock.MatchedBy(func(c *genai.GenerateContentConfig) bool {
		return c.ResponseMIMEType == "application/json" &&
			c.Temperature != nil && *c.Temperature == float32(0.1) &&
			c.TopK != nil && *c.TopK == float32(50) &&
			c.SystemInstruction != nil && c.SystemInstruction.Parts[0].Text == "classify"
	})).Return(textResponse(`{"category":"app_lifecycle"}`), nil).Once()

	out, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"category":"app_lifecycle"}`, out)
	gen.AssertExpectations(t)

	entries := logs.FilterMessage("LLM generation complete").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int32(15), entries[0].ContextMap()["total_tokens"])
}

func TestGeminiClient_Generate_UsesModelDefaultsWhenRequestIsZero(t *testing.T) {
	logger, _ := setupTestLogger(t)
	gen := new(mockGenerator)
	client := newGeminiClient(gen, getValidLLMConfig(), logger)

	gen.On("GenerateContent", mock.Anything, "test-model", mock.Anything, mock.MatchedBy(func(c *genai.GenerateContentConfig) bool {
		return *c.Temperature == float32(0.7) && *c.TopP == float32(0.9) && c.ResponseMIMEType == "" && c.SystemInstruction == nil
	})).Return(textResponse("ok"), nil).Once()

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	gen.AssertExpectations(t)
}

func TestGeminiClient_Generate_RetriesTransientErrors(t *testing.T) {
	logger, _ := setupTestLogger(t)
	gen := new(mockGenerator)
	client := newGeminiClient(gen, getValidLLMConfig(), logger)

	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, genai.APIError{Code: http.StatusTooManyRequests, Message: "slow down"}).Once()
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(textResponse("recovered"), nil).Once()

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	gen.AssertNumberOfCalls(t, "GenerateContent", 2)
}

func TestGeminiClient_Generate_PermanentErrors(t *testing.T) {
	tests := []struct {
		name     string
		response *genai.GenerateContentResponse
		err      error
		contains string
	}{
		{
			name:     "bad request is not retried",
			err:      genai.APIError{Code: http.StatusBadRequest, Message: "bad"},
			contains: "bad",
		},
		{
			name:     "no candidates",
			response: &genai.GenerateContentResponse{},
			contains: "no candidates",
		},
		{
			name: "safety block",
			response: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				FinishReason: genai.FinishReasonSafety,
			}}},
			contains: "blocked the request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := setupTestLogger(t)
			gen := new(mockGenerator)
			client := newGeminiClient(gen, getValidLLMConfig(), logger)

			if tt.err != nil {
				gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			} else {
				gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tt.response, nil)
			}

			_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			gen.AssertNumberOfCalls(t, "GenerateContent", 1)
		})
	}
}

func TestGeminiClient_Generate_ContextCancelled(t *testing.T) {
	logger, _ := setupTestLogger(t)
	gen := new(mockGenerator)
	client := newGeminiClient(gen, getValidLLMConfig(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))

	_, err := client.Generate(ctx, schemas.GenerationRequest{UserPrompt: "hi"})
	require.Error(t, err)
}

func TestGeminiClient_SafetySettings(t *testing.T) {
	logger, _ := setupTestLogger(t)
	cfg := getValidLLMConfig()
	cfg.SafetyFilters = map[string]string{
		"harm_category_harassment": "block_none",
	}
	client := newGeminiClient(new(mockGenerator), cfg, logger)

	settings := client.safetySettings()
	require.Len(t, settings, 1)
	assert.Equal(t, genai.HarmCategory("HARM_CATEGORY_HARASSMENT"), settings[0].Category)
	assert.Equal(t, genai.HarmBlockThreshold("BLOCK_NONE"), settings[0].Threshold)
}
