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

const mcqReply = "Question: What stores genetic information?\nA) DNA\nB) Lipids\nC) Water\nD) Salt\nCorrect Answer: A"

func newQuizServiceMock(t *testing.T, ctrl *gomock.Controller, setupMock func(*mock_services.MockChatCompleter)) *QuizService {
	client := mock_services.NewMockChatCompleter(ctrl)
	if setupMock != nil {
		setupMock(client)
	}
	log := zap.NewNop()
	return NewQuizService(NewAIServiceWithClient(client, "m", log), NewPDFService(nil, log), log)
}

type progressRecorder struct {
	steps []string
	pcts  []int
}

func (p *progressRecorder) callback() ProgressCallback {
	return func(step, _ string, current, total int) {
		p.steps = append(p.steps, step)
		p.pcts = append(p.pcts, current*100/total)
	}
}

func TestQuizService_GenerateStudySet(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	quiz := newQuizServiceMock(t, ctrl, func(m *mock_services.MockChatCompleter) {
		gomock.InOrder(
			m.EXPECT().CreateChatCompletion(gomock.Any(), gomock.Any()).Return(completion(mcqReply), nil),
			m.EXPECT().CreateChatCompletion(gomock.Any(), gomock.Any()).Return(openai.ChatCompletionResponse{}, errors.New("rate limited")),
			m.EXPECT().CreateChatCompletion(gomock.Any(), gomock.Any()).Return(completion(mcqReply), nil),
		)
	})

	rec := &progressRecorder{}
	text := strings.Repeat("Key concepts and important facts about cells. ", 60)
	set, err := quiz.GenerateStudySet(context.Background(), StudyRequest{
		Text:  text,
		Count: 3,
		Type:  models.QuestionMCQ,
		Level: models.DifficultyEasy,
	}, rec.callback())
	require.NoError(t, err)

	require.Len(t, set.Questions, 3)
	assert.Equal(t, "What stores genetic information?", set.Questions[0].Question)
	assert.Equal(t, "[Error: chat completion: rate limited]", set.Questions[1].Question)
	assert.Equal(t, models.DifficultyEasy, set.Questions[1].Difficulty)
	assert.Equal(t, "A", set.Questions[1].Correct)
	assert.NotEmpty(t, set.Chunks)

	assert.Equal(t, []int{10, 20, 45, 70, 95, 100}, rec.pcts)
	assert.Equal(t, "done", rec.steps[len(rec.steps)-1])
}

func TestQuizService_GenerateStudySetRequiresKey(t *testing.T) {
	t.Parallel()

	quiz := NewQuizService(NewAIService(LLMSettings{Model: "m"}, nil), NewPDFService(nil, nil), nil)
	_, err := quiz.GenerateStudySet(context.Background(), StudyRequest{Text: "some text", Count: 1}, nil)
	assert.ErrorIs(t, err, ErrAIUnavailable)

	_, err = quiz.GenerateStudySet(context.Background(), StudyRequest{Text: "  "}, nil)
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestQuizService_GenerateTestSizes(t *testing.T) {
	t.Parallel()

	for _, level := range []models.Difficulty{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard} {
		t.Run(string(level), func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			quiz := newQuizServiceMock(t, ctrl, func(m *mock_services.MockChatCompleter) {
				m.EXPECT().CreateChatCompletion(gomock.Any(), gomock.Any()).Return(completion(mcqReply), nil).Times(level.TestSize())
			})

			qs, err := quiz.GenerateTest(context.Background(), TestRequest{
				Chunks: []string{"chunk one", "chunk two"},
				Type:   models.QuestionMCQ,
				Level:  level,
			}, nil)
			require.NoError(t, err)
			assert.Len(t, qs, level.TestSize())
		})
	}
}

func TestQuizService_GenerateTestUsesFallbackText(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fallback := strings.Repeat("f", 2000)
	quiz := newQuizServiceMock(t, ctrl, func(m *mock_services.MockChatCompleter) {
		m.EXPECT().CreateChatCompletion(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
				assert.True(t, strings.HasSuffix(req.Messages[0].Content, "Context:\n"+strings.Repeat("f", 1400)))
				return completion(mcqReply), nil
			}).Times(5)
	})

	qs, err := quiz.GenerateTest(context.Background(), TestRequest{
		FallbackText: fallback,
		Type:         models.QuestionMCQ,
		Level:        models.DifficultyEasy,
	}, nil)
	require.NoError(t, err)
	assert.Len(t, qs, 5)
	assert.Len(t, qs[0].Context, 300)
}

func TestQuizService_Preview(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	quiz := newQuizServiceMock(t, ctrl, func(m *mock_services.MockChatCompleter) {
		m.EXPECT().CreateChatCompletion(gomock.Any(), gomock.Any()).Return(completion(mcqReply), nil)
	})

	doc := AnalyzeText(strings.Repeat("The cell is the unit of life. ", 100))
	q, err := quiz.Preview(context.Background(), doc, models.QuestionMCQ)
	require.NoError(t, err)
	assert.Equal(t, doc.Difficulty, q.Difficulty)

	_, err = quiz.Preview(context.Background(), nil, models.QuestionMCQ)
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestContextFor(t *testing.T) {
	t.Parallel()

	chunks := []string{"alpha beta", "key concepts here", "important facts", "nothing"}
	assert.Equal(t, "key concepts here\nimportant facts", contextFor(studyQuery, chunks, 0, ""))

	assert.Equal(t, "fallback", contextFor(studyQuery, nil, 3, "fallback"))
}

func TestAnalyzeText(t *testing.T) {
	t.Parallel()

	doc := AnalyzeText("CHAPTER ONE OVERVIEW\nThe cat sat. The dog ran.")
	assert.Equal(t, 9, doc.WordCount)
	assert.Equal(t, 10, doc.MaxQuestions)
	assert.Len(t, doc.Hash, 32)
	assert.Equal(t, []string{"CHAPTER ONE OVERVIEW"}, doc.Topics)

	again := AnalyzeText("CHAPTER ONE OVERVIEW\nThe cat sat. The dog ran.")
	assert.Equal(t, doc.Hash, again.Hash)
}

func TestGrade(t *testing.T) {
	t.Parallel()

	qs := []models.Question{
		{Question: "q1", Options: []string{"A) x", "B) y", "C) z", "D) w"}, Correct: "A"},
		{Question: "q2", Options: []string{"A) True", "B) False"}, Correct: "B"},
		{Question: "q3", Options: []string{"A) x", "B) y", "C) z", "D) w"}, Correct: "C"},
	}

	res := Grade(qs, map[int]string{0: "A", 1: "A", 2: "C"})
	assert.Equal(t, 2, res.Score)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 66.7, res.Percent)
	assert.Equal(t, "Good Work", res.Verdict)
	require.Len(t, res.Wrong, 1)
	assert.Equal(t, "q2", res.Wrong[0].Question)
	assert.Equal(t, "True", res.Review[1].Answer)
	assert.Equal(t, "False", res.Review[1].Correct)
	assert.False(t, res.Review[1].OK)
}

func TestPercentAndVerdict(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, Percent(0, 0))
	assert.Equal(t, 100.0, Percent(5, 5))
	assert.Equal(t, 14.3, Percent(1, 7))

	assert.Equal(t, "Outstanding", Verdict(80))
	assert.Equal(t, "Good Work", Verdict(60))
	assert.Equal(t, "Keep Pushing", Verdict(59.9))
}
