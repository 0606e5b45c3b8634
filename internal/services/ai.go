package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"quizgenius/internal/models"
)

var (
	// ErrAIUnavailable is returned when no API key is configured for the LLM.
	ErrAIUnavailable = errors.New("llm integration is not configured")
	// ErrEmptyCompletion is returned when the model answers with no choices.
	ErrEmptyCompletion = errors.New("llm returned no choices")
)

const completionTimeout = 60 * time.Second

//go:generate mockgen -source=ai.go -destination=mock/ai_mock.go -package=mock_services

// ChatCompleter is the subset of the go-openai client used for generation.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMSettings configures the OpenAI-compatible endpoint (Groq by default).
type LLMSettings struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	RatePerSec  float64
}

type AIService struct {
	client      ChatCompleter
	apiKey      string
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
	limiter     *rate.Limiter
	newClient   func(apiKey, baseURL string) ChatCompleter
	log         *zap.Logger
}

func NewAIService(settings LLMSettings, log *zap.Logger) *AIService {
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if settings.RatePerSec > 0 {
		limit = rate.Limit(settings.RatePerSec)
	}

	s := &AIService{
		apiKey:      settings.APIKey,
		baseURL:     settings.BaseURL,
		model:       settings.Model,
		temperature: settings.Temperature,
		maxTokens:   settings.MaxTokens,
		limiter:     rate.NewLimiter(limit, 1),
		newClient:   newOpenAIClient,
		log:         log,
	}
	if settings.APIKey != "" {
		s.client = s.newClient(settings.APIKey, settings.BaseURL)
	}
	return s
}

// NewAIServiceWithClient wires an existing completion client, mainly for tests.
func NewAIServiceWithClient(client ChatCompleter, model string, log *zap.Logger) *AIService {
	s := NewAIService(LLMSettings{Model: model, Temperature: 0.7, MaxTokens: 600}, log)
	s.client = client
	s.apiKey = "injected"
	return s
}

func newOpenAIClient(apiKey, baseURL string) ChatCompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// WithKey returns a service that authenticates with apiKey instead of the
// server key. The rate limiter is shared. An empty key returns s unchanged.
func (s *AIService) WithKey(apiKey string) *AIService {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || apiKey == s.apiKey {
		return s
	}
	clone := *s
	clone.apiKey = apiKey
	clone.client = s.newClient(apiKey, s.baseURL)
	return &clone
}

func (s *AIService) disabled() bool {
	return s.client == nil || s.model == ""
}

func (s *AIService) Enabled() bool {
	return !s.disabled()
}

// Complete sends prompt as a single user message and returns the first
// choice, trimmed.
func (s *AIService) Complete(ctx context.Context, prompt string) (string, error) {
	if s.disabled() {
		return "", ErrAIUnavailable
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for llm rate limit: %w", err)
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}

	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	s.log.Debug("llm completion",
		zap.String("model", s.model),
		zap.Duration("took", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// GenerateQuestion prompts for one question of type qt and parses the reply.
// The returned question carries the first 300 characters of passage.
func (s *AIService) GenerateQuestion(ctx context.Context, passage string, qt models.QuestionType, d models.Difficulty) (models.Question, error) {
	raw, err := s.Complete(ctx, BuildPrompt(passage, qt, d))
	if err != nil {
		return models.Question{}, err
	}
	q := ParseQuestion(raw, qt)
	q.Context = truncateRunes(passage, questionContextLimit)
	q.Difficulty = d
	if q.Question == parseErrorQuestion {
		s.log.Warn("could not parse llm reply", zap.String("type", string(qt)), zap.String("raw", sanitizeForPrompt(raw, 200)))
	}
	return q, nil
}
