package models

import (
	"database/sql"
	"strings"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
)

type QuestionType string

const (
	QuestionMCQ       QuestionType = "MCQ"
	QuestionTrueFalse QuestionType = "TF"
	QuestionFillBlank QuestionType = "FIB"
)

// Label is the human readable name used in banners and exports.
func (t QuestionType) Label() string {
	switch t {
	case QuestionTrueFalse:
		return "True/False"
	case QuestionFillBlank:
		return "Fill-in-the-Blank"
	default:
		return "Multiple Choice"
	}
}

func ParseQuestionType(raw string) (QuestionType, bool) {
	switch QuestionType(strings.ToUpper(strings.TrimSpace(raw))) {
	case QuestionMCQ, "":
		return QuestionMCQ, true
	case QuestionTrueFalse:
		return QuestionTrueFalse, true
	case QuestionFillBlank:
		return QuestionFillBlank, true
	default:
		return "", false
	}
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

func ParseDifficulty(raw string) (Difficulty, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "easy":
		return DifficultyEasy, true
	case "medium":
		return DifficultyMedium, true
	case "hard":
		return DifficultyHard, true
	default:
		return "", false
	}
}

// TestSize is the number of questions generated for a test at this level.
func (d Difficulty) TestSize() int {
	switch d {
	case DifficultyEasy:
		return 5
	case DifficultyHard:
		return 10
	default:
		return 7
	}
}

// Question is a single generated quiz question. Options are stored with their
// letter prefix, e.g. "B) Paris".
type Question struct {
	Question   string       `json:"question"`
	Options    []string     `json:"options"`
	Correct    string       `json:"correct"`
	Context    string       `json:"context"`
	Type       QuestionType `json:"type"`
	Difficulty Difficulty   `json:"difficulty"`
}

// OptionFor returns the option carrying the given letter, or "" when absent.
func (q Question) OptionFor(letter string) string {
	if letter == "" {
		return ""
	}
	for _, opt := range q.Options {
		if strings.HasPrefix(strings.TrimSpace(opt), letter) {
			return opt
		}
	}
	return ""
}

// Answer returns the text of the correct option without its letter prefix.
func (q Question) Answer() string {
	opt := q.OptionFor(q.Correct)
	if opt == "" {
		return q.Correct
	}
	return CleanOption(opt)
}

var optionMarkers = []string{"Context:", "Correct Answer:", "Question:"}

// CleanOption strips the "X) " prefix and anything after an inline template marker.
func CleanOption(opt string) string {
	raw := strings.TrimSpace(opt)
	txt := raw
	if len(raw) > 2 {
		txt = strings.TrimSpace(raw[2:])
	}
	for _, marker := range optionMarkers {
		if idx := strings.Index(strings.ToLower(txt), strings.ToLower(marker)); idx >= 0 {
			txt = strings.TrimSpace(txt[:idx])
		}
	}
	if txt == "" {
		return "--"
	}
	return strings.TrimSpace(strings.SplitN(txt, "\n", 2)[0])
}

// Document is an uploaded PDF after text extraction and analysis.
type Document struct {
	Name         string     `json:"name"`
	Size         int64      `json:"size"`
	Hash         string     `json:"hash"`
	Text         string     `json:"-"`
	PageCount    int        `json:"pageCount"`
	WordCount    int        `json:"wordCount"`
	MaxQuestions int        `json:"maxQuestions"`
	Difficulty   Difficulty `json:"difficulty"`
	Topics       []string   `json:"topics"`
	UsedOCR      bool       `json:"usedOcr"`
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

// ScoreEntry is one submitted test.
type ScoreEntry struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"-"`
	TakenAt    time.Time  `json:"takenAt"`
	Difficulty Difficulty `json:"difficulty"`
	Score      int        `json:"score"`
	Total      int        `json:"total"`
	Percent    float64    `json:"percent"`
	Source     string     `json:"source"`
}

type ProgressStats struct {
	TestsTaken     int     `json:"testsTaken"`
	AveragePercent float64 `json:"averagePercent"`
	BestPercent    float64 `json:"bestPercent"`
	Bookmarks      int     `json:"bookmarks"`
	Mistakes       int     `json:"mistakes"`
	Questions      int     `json:"questions"`
}

// Card is the FSRS schedule of a single study question for a user.
type Card struct {
	ID            int64
	UserID        int64
	QuestionKey   string
	Due           sql.NullTime
	Stability     float64
	Difficulty    float64
	ElapsedDays   int
	ScheduledDays int
	Reps          int
	Lapses        int
	State         int
	LastReview    sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ReviewLog struct {
	ID            int64
	CardID        int64
	Rating        int
	ScheduledDays int
	ElapsedDays   int
	State         int
	ReviewedAt    time.Time
}

func (c *Card) ToFSRSCard() fsrs.Card {
	card := fsrs.Card{
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   uint64(max(c.ElapsedDays, 0)),
		ScheduledDays: uint64(max(c.ScheduledDays, 0)),
		Reps:          uint64(max(c.Reps, 0)),
		Lapses:        uint64(max(c.Lapses, 0)),
		State:         fsrs.State(max(c.State, 0)),
	}
	if c.Due.Valid {
		card.Due = c.Due.Time
	}
	if c.LastReview.Valid {
		card.LastReview = c.LastReview.Time
	}
	return card
}

func (c *Card) ApplyFSRSCard(f fsrs.Card) {
	c.Due = sql.NullTime{Time: f.Due, Valid: !f.Due.IsZero()}
	c.Stability = f.Stability
	c.Difficulty = f.Difficulty
	c.ElapsedDays = int(f.ElapsedDays)
	c.ScheduledDays = int(f.ScheduledDays)
	c.Reps = int(f.Reps)
	c.Lapses = int(f.Lapses)
	c.State = int(f.State)
	c.LastReview = sql.NullTime{Time: f.LastReview, Valid: !f.LastReview.IsZero()}
}
