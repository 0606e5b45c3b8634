package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quizgenius/internal/models"
	mock_services "quizgenius/internal/services/mock"
)

func completion(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}
}

func TestAIService_Complete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		f       func(*testing.T, *mock_services.MockChatCompleter)
		want    string
		wantErr error
	}{
		{
			name: "success",
			f: func(t *testing.T, m *mock_services.MockChatCompleter) {
				m.EXPECT().CreateChatCompletion(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
						assert.Equal(t, "llama-3.1-8b-instant", req.Model)
						assert.InDelta(t, 0.7, req.Temperature, 1e-6)
						assert.Equal(t, 600, req.MaxTokens)
						require.Len(t, req.Messages, 1)
						assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[0].Role)
						assert.Equal(t, "prompt", req.Messages[0].Content)
						return completion("  answer \n"), nil
					})
			},
			want: "answer",
		},
		{
			name: "no choices",
			f: func(t *testing.T, m *mock_services.MockChatCompleter) {
				m.EXPECT().CreateChatCompletion(gomock.Any(), gomock.Any()).Return(openai.ChatCompletionResponse{}, nil)
			},
			wantErr: ErrEmptyCompletion,
		},
		{
			name: "client error",
			f: func(t *testing.T, m *mock_services.MockChatCompleter) {
				m.EXPECT().CreateChatCompletion(gomock.Any(), gomock.Any()).Return(openai.ChatCompletionResponse{}, errors.New("503 service unavailable"))
			},
			wantErr: errors.New("chat completion: 503 service unavailable"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			client := mock_services.NewMockChatCompleter(ctrl)
			tt.f(t, client)
			ai := NewAIServiceWithClient(client, "llama-3.1-8b-instant", zap.NewNop())

			got, err := ai.Complete(context.Background(), "prompt")
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr.Error(), err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAIService_Disabled(t *testing.T) {
	t.Parallel()

	ai := NewAIService(LLMSettings{Model: "m"}, nil)
	assert.False(t, ai.Enabled())

	_, err := ai.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, ErrAIUnavailable)
}

func TestAIService_WithKey(t *testing.T) {
	t.Parallel()

	var built []string
	ai := NewAIService(LLMSettings{Model: "m", BaseURL: "https://example.test/v1"}, nil)
	ai.newClient = func(apiKey, baseURL string) ChatCompleter {
		built = append(built, apiKey+"@"+baseURL)
		return openai.NewClient(apiKey)
	}

	assert.Same(t, ai, ai.WithKey(""))
	assert.Same(t, ai, ai.WithKey("   "))

	keyed := ai.WithKey("gsk_user")
	assert.NotSame(t, ai, keyed)
	assert.True(t, keyed.Enabled())
	assert.False(t, ai.Enabled())
	assert.Same(t, ai.limiter, keyed.limiter)
	assert.Equal(t, []string{"gsk_user@https://example.test/v1"}, built)
}

func TestAIService_GenerateQuestion(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	passage := strings.Repeat("cells divide by mitosis. ", 40)
	client := mock_services.NewMockChatCompleter(ctrl)
	client.EXPECT().CreateChatCompletion(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			assert.Contains(t, req.Messages[0].Content, "Create ONE True/False question (ANALYSIS).")
			return completion("Question: Cells divide by mitosis.\nAnswer: True"), nil
		})

	ai := NewAIServiceWithClient(client, "m", zap.NewNop())
	q, err := ai.GenerateQuestion(context.Background(), passage, models.QuestionTrueFalse, models.DifficultyHard)
	require.NoError(t, err)

	assert.Equal(t, "Cells divide by mitosis.", q.Question)
	assert.Equal(t, "A", q.Correct)
	assert.Equal(t, models.DifficultyHard, q.Difficulty)
	assert.Equal(t, passage[:300], q.Context)
}
