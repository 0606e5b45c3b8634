package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"quizgenius/internal/models"
	"quizgenius/internal/textproc"
)

// ProgressCallback is called during generation to report progress.
type ProgressCallback func(step, message string, current, total int)

var (
	// ErrNoDocument indicates that no PDF has been processed yet.
	ErrNoDocument = errors.New("no document has been processed")
	// ErrEmptyDocument is returned when a PDF yields no usable text.
	ErrEmptyDocument = errors.New("no text could be extracted from the pdf")
	ErrNoQuestions   = errors.New("no questions to work with")
)

const (
	studyQuery         = "key concepts important facts"
	rankedChunks       = 3
	contextChunks      = 2
	testFallbackChars  = 1500
	DefaultStudyCount  = 10
	passVerdictPercent = 60
	topVerdictPercent  = 80
)

// StudyRequest describes one study-set generation run.
type StudyRequest struct {
	Text   string
	Topics []string
	Count  int
	Type   models.QuestionType
	Level  models.Difficulty
}

// StudySet is the output of a study generation run. Chunks are kept for
// later test generation.
type StudySet struct {
	Questions []models.Question
	Chunks    []string
}

// TestRequest describes one test generation run.
type TestRequest struct {
	Chunks       []string
	FallbackText string
	Type         models.QuestionType
	Level        models.Difficulty
}

type QuizService struct {
	ai  *AIService
	pdf *PDFService
	log *zap.Logger
}

func NewQuizService(ai *AIService, pdf *PDFService, log *zap.Logger) *QuizService {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuizService{ai: ai, pdf: pdf, log: log}
}

// WithKey returns a service whose LLM calls use apiKey when it is set.
func (s *QuizService) WithKey(apiKey string) *QuizService {
	ai := s.ai.WithKey(apiKey)
	if ai == s.ai {
		return s
	}
	clone := *s
	clone.ai = ai
	return &clone
}

func (s *QuizService) Enabled() bool {
	return s.ai != nil && s.ai.Enabled()
}

// Analyze extracts the PDF text and derives word count, question budget,
// detected difficulty and headings.
func (s *QuizService) Analyze(ctx context.Context, name string, data []byte) (*models.Document, error) {
	extraction, err := s.pdf.ExtractText(ctx, data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(extraction.Text) == "" {
		return nil, ErrEmptyDocument
	}

	doc := AnalyzeText(extraction.Text)
	doc.Name = name
	doc.Size = int64(len(data))
	doc.PageCount = extraction.PageCount
	doc.UsedOCR = extraction.UsedOCR

	s.log.Info("document analyzed",
		zap.String("name", name),
		zap.Int("pages", doc.PageCount),
		zap.Int("words", doc.WordCount),
		zap.String("difficulty", string(doc.Difficulty)),
		zap.Bool("ocr", doc.UsedOCR),
	)
	return doc, nil
}

// AnalyzeText computes the document statistics for already extracted text.
func AnalyzeText(text string) *models.Document {
	words := len(strings.Fields(text))
	sum := md5.Sum([]byte(text))
	return &models.Document{
		Hash:         hex.EncodeToString(sum[:]),
		Text:         text,
		WordCount:    words,
		MaxQuestions: textproc.MaxQuestions(words),
		Difficulty:   textproc.DetectDifficulty(text),
		Topics:       textproc.ExtractTopics(text),
	}
}

// Preview generates a single question from the first chunk of the document.
func (s *QuizService) Preview(ctx context.Context, doc *models.Document, qt models.QuestionType) (models.Question, error) {
	if doc == nil || strings.TrimSpace(doc.Text) == "" {
		return models.Question{}, ErrNoDocument
	}
	if !s.Enabled() {
		return models.Question{}, ErrAIUnavailable
	}
	chunks := textproc.Chunk(doc.Text)
	q, err := s.ai.GenerateQuestion(ctx, chunks[0], qt, doc.Difficulty)
	if err != nil {
		return models.Question{}, fmt.Errorf("generate preview: %w", err)
	}
	return q, nil
}

// GenerateStudySet builds req.Count questions. Individual failures become
// error placeholders so the run always yields exactly Count questions.
func (s *QuizService) GenerateStudySet(ctx context.Context, req StudyRequest, progress ProgressCallback) (*StudySet, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrNoDocument
	}
	if !s.Enabled() {
		return nil, ErrAIUnavailable
	}
	n := req.Count
	if n <= 0 {
		n = DefaultStudyCount
	}

	report(progress, "split", "Splitting document", 10)
	chunks := textproc.Chunk(textproc.FocusText(req.Text, req.Topics))

	report(progress, "index", "Building search index", 20)
	questions := make([]models.Question, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report(progress, "generate", fmt.Sprintf("Generating question %d of %d", i+1, n), 20+(i+1)*75/n)

		passage := contextFor(studyQuery, chunks, i, "")
		q, err := s.ai.GenerateQuestion(ctx, passage, req.Type, req.Level)
		if err != nil {
			s.log.Warn("question generation failed", zap.Int("index", i), zap.Error(err))
			q = errorPlaceholder(err, req.Type)
			q.Difficulty = req.Level
		}
		questions = append(questions, q)
	}

	report(progress, "done", "Done", 100)
	return &StudySet{Questions: questions, Chunks: chunks}, nil
}

// GenerateTest builds a test sized by difficulty (Easy 5, Medium 7, Hard 10).
func (s *QuizService) GenerateTest(ctx context.Context, req TestRequest, progress ProgressCallback) ([]models.Question, error) {
	if len(req.Chunks) == 0 && strings.TrimSpace(req.FallbackText) == "" {
		return nil, ErrNoDocument
	}
	if !s.Enabled() {
		return nil, ErrAIUnavailable
	}

	n := req.Level.TestSize()
	query := fmt.Sprintf("%s level concepts", req.Level)
	fallback := truncateRunes(req.FallbackText, testFallbackChars)

	questions := make([]models.Question, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report(progress, "generate", fmt.Sprintf("Question %d/%d", i+1, n), (i+1)*100/n)

		passage := contextFor(query, req.Chunks, i, fallback)
		q, err := s.ai.GenerateQuestion(ctx, passage, req.Type, req.Level)
		if err != nil {
			s.log.Warn("test question generation failed", zap.Int("index", i), zap.Error(err))
			q = errorPlaceholder(err, req.Type)
			q.Difficulty = req.Level
		}
		questions = append(questions, q)
	}
	report(progress, "done", "Ready", 100)
	return questions, nil
}

// contextFor joins the two best matching of the top three chunks. With no
// ranked chunks it cycles through the chunks, then falls back to fallback.
func contextFor(query string, chunks []string, i int, fallback string) string {
	ranked := textproc.KeywordSearch(query, chunks, rankedChunks)
	if len(ranked) > 0 {
		return strings.Join(ranked[:min(contextChunks, len(ranked))], "\n")
	}
	if len(chunks) > 0 {
		return chunks[i%len(chunks)]
	}
	return fallback
}

func report(progress ProgressCallback, step, message string, pct int) {
	if progress != nil {
		progress(step, message, pct, 100)
	}
}

// ReviewItem is the per-question breakdown of a graded test.
type ReviewItem struct {
	Index    int    `json:"index"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Correct  string `json:"correct"`
	OK       bool   `json:"ok"`
}

type TestResult struct {
	Score   int               `json:"score"`
	Total   int               `json:"total"`
	Percent float64           `json:"percent"`
	Verdict string            `json:"verdict"`
	Wrong   []models.Question `json:"-"`
	Review  []ReviewItem      `json:"review"`
}

// Grade compares answers (question index to letter) against the correct
// letters. Percent is rounded to one decimal.
func Grade(questions []models.Question, answers map[int]string) TestResult {
	result := TestResult{Total: len(questions)}
	for i, q := range questions {
		given := answers[i]
		ok := given == q.Correct
		if ok {
			result.Score++
		} else {
			result.Wrong = append(result.Wrong, q)
		}
		result.Review = append(result.Review, ReviewItem{
			Index:    i,
			Question: q.Question,
			Answer:   answerText(q, given),
			Correct:  q.Answer(),
			OK:       ok,
		})
	}
	result.Percent = Percent(result.Score, result.Total)
	result.Verdict = Verdict(result.Percent)
	return result
}

func answerText(q models.Question, letter string) string {
	opt := q.OptionFor(letter)
	if opt == "" {
		return letter
	}
	return models.CleanOption(opt)
}

// Percent is correct/total as a percentage rounded to one decimal place.
func Percent(correct, total int) float64 {
	return math.Round(float64(correct)/float64(max(total, 1))*1000) / 10
}

func Verdict(pct float64) string {
	switch {
	case pct >= topVerdictPercent:
		return "Outstanding"
	case pct >= passVerdictPercent:
		return "Good Work"
	default:
		return "Keep Pushing"
	}
}
