package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
	"go.uber.org/zap"

	"quizgenius/internal/models"
)

var (
	// ErrEmptyDeck indicates that the selected filter matches no questions.
	ErrEmptyDeck       = errors.New("no flashcards match the filter")
	ErrGuestReview     = errors.New("sign in to track flashcard reviews")
	ErrInvalidRating   = errors.New("rating must be again, hard, good or easy")
	ErrInvalidFilter   = errors.New("filter must be All, Bookmarked, Mistakes or Due")
	ErrQuestionIndex   = errors.New("question index out of range")
	ErrInvalidMovement = errors.New("move must be next, prev or shuffle")
)

type FlashcardFilter string

const (
	FilterAll        FlashcardFilter = "All"
	FilterBookmarked FlashcardFilter = "Bookmarked"
	FilterMistakes   FlashcardFilter = "Mistakes"
	FilterDue        FlashcardFilter = "Due"
)

func ParseFlashcardFilter(raw string) (FlashcardFilter, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all":
		return FilterAll, nil
	case "bookmarked", "bookmarks":
		return FilterBookmarked, nil
	case "mistakes", "wrong":
		return FilterMistakes, nil
	case "due":
		return FilterDue, nil
	default:
		return "", ErrInvalidFilter
	}
}

// ParseRating accepts the rating names or their FSRS numbers 1..4.
func ParseRating(raw string) (fsrs.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "again", "1":
		return fsrs.Again, nil
	case "hard", "2":
		return fsrs.Hard, nil
	case "good", "3":
		return fsrs.Good, nil
	case "easy", "4":
		return fsrs.Easy, nil
	default:
		return 0, ErrInvalidRating
	}
}

// DeckEntry is one flashcard: a study question plus its position in the
// full question list.
type DeckEntry struct {
	Index      int             `json:"index"`
	Question   models.Question `json:"question"`
	Answer     string          `json:"answer"`
	Bookmarked bool            `json:"bookmarked"`
	Due        *time.Time      `json:"due,omitempty"`
	Reps       int             `json:"reps"`
}

// FlashcardView is the card shown at Position within a filtered deck.
type FlashcardView struct {
	Filter   FlashcardFilter `json:"filter"`
	Position int             `json:"position"`
	Total    int             `json:"total"`
	Card     DeckEntry       `json:"card"`
}

// BuildDeck filters questions. Bookmarks and mistakes are matched on the
// question text. The Due filter keeps cards never reviewed or due by now,
// earliest first.
func BuildDeck(questions []models.Question, filter FlashcardFilter, bookmarks []string, mistakes []models.Question, schedule map[string]models.Card, now time.Time) []DeckEntry {
	marked := make(map[string]struct{}, len(bookmarks))
	for _, b := range bookmarks {
		marked[b] = struct{}{}
	}
	wrong := make(map[string]struct{}, len(mistakes))
	for _, q := range mistakes {
		wrong[q.Question] = struct{}{}
	}

	var deck []DeckEntry
	for i, q := range questions {
		_, isMarked := marked[q.Question]
		_, isWrong := wrong[q.Question]
		entry := DeckEntry{Index: i, Question: q, Answer: q.Answer(), Bookmarked: isMarked}
		card, scheduled := schedule[q.Question]
		if scheduled {
			entry.Reps = card.Reps
			if card.Due.Valid {
				due := card.Due.Time
				entry.Due = &due
			}
		}

		switch filter {
		case FilterBookmarked:
			if !isMarked {
				continue
			}
		case FilterMistakes:
			if !isWrong {
				continue
			}
		case FilterDue:
			if entry.Due != nil && entry.Due.After(now) {
				continue
			}
		}
		deck = append(deck, entry)
	}

	if filter == FilterDue {
		sort.SliceStable(deck, func(i, j int) bool {
			a, b := deck[i].Due, deck[j].Due
			switch {
			case a == nil:
				return b != nil
			case b == nil:
				return false
			default:
				return a.Before(*b)
			}
		})
	}
	return deck
}

// StepIndex moves idx by delta and wraps around a deck of total cards.
func StepIndex(idx, delta, total int) int {
	if total <= 0 {
		return 0
	}
	idx = min(max(idx, 0), total-1)
	return ((idx+delta)%total + total) % total
}

// FlashcardService renders decks and schedules reviews with FSRS.
type FlashcardService struct {
	db     *sql.DB
	params fsrs.Parameters
	now    func() time.Time
	intn   func(n int) int
	log    *zap.Logger
}

func NewFlashcardService(db *sql.DB, log *zap.Logger) *FlashcardService {
	if log == nil {
		log = zap.NewNop()
	}
	return &FlashcardService{
		db:     db,
		params: fsrs.DefaultParam(),
		now:    time.Now,
		intn:   rand.IntN,
		log:    log,
	}
}

// View returns the card at position idx (clamped) of the filtered deck.
func (s *FlashcardService) View(ctx context.Context, ws *Workspace, store ProgressStore, filter FlashcardFilter, idx int) (*FlashcardView, error) {
	deck, err := s.Deck(ctx, ws, store, filter)
	if err != nil {
		return nil, err
	}
	if len(deck) == 0 {
		return nil, ErrEmptyDeck
	}
	pos := min(max(idx, 0), len(deck)-1)
	return &FlashcardView{Filter: filter, Position: pos, Total: len(deck), Card: deck[pos]}, nil
}

// Move computes the next deck position for "next", "prev" or "shuffle".
func (s *FlashcardService) Move(idx, total int, action string) (int, error) {
	switch strings.ToLower(action) {
	case "next":
		return StepIndex(idx, 1, total), nil
	case "prev", "previous":
		return StepIndex(idx, -1, total), nil
	case "shuffle", "random":
		if total <= 0 {
			return 0, nil
		}
		return s.intn(total), nil
	default:
		return idx, ErrInvalidMovement
	}
}

// Deck loads bookmarks, mistakes and schedules for ws and builds the deck.
func (s *FlashcardService) Deck(ctx context.Context, ws *Workspace, store ProgressStore, filter FlashcardFilter) ([]DeckEntry, error) {
	bookmarks, err := store.Bookmarks(ctx)
	if err != nil {
		return nil, err
	}
	mistakes, err := store.WrongAnswers(ctx)
	if err != nil {
		return nil, err
	}
	var schedule map[string]models.Card
	if !ws.Guest && ws.UserID != 0 {
		if schedule, err = s.Schedules(ctx, ws.UserID); err != nil {
			return nil, err
		}
	}
	return BuildDeck(ws.Questions, filter, bookmarks, mistakes, schedule, s.now().UTC()), nil
}

// Schedules returns the user's FSRS cards keyed by question text.
func (s *FlashcardService) Schedules(ctx context.Context, userID int64) (map[string]models.Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, question_key, due, stability, difficulty, elapsed_days, scheduled_days,
		       reps, lapses, state, last_review, created_at, updated_at
		FROM cards
		WHERE user_id = ?;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.Card)
	for rows.Next() {
		var card models.Card
		if err := scanCard(rows, &card); err != nil {
			return nil, err
		}
		out[card.QuestionKey] = card
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner, card *models.Card) error {
	if err := row.Scan(
		&card.ID,
		&card.UserID,
		&card.QuestionKey,
		&card.Due,
		&card.Stability,
		&card.Difficulty,
		&card.ElapsedDays,
		&card.ScheduledDays,
		&card.Reps,
		&card.Lapses,
		&card.State,
		&card.LastReview,
		&card.CreatedAt,
		&card.UpdatedAt,
	); err != nil {
		return fmt.Errorf("scan card: %w", err)
	}
	return nil
}

// Review updates the schedule of the card for question based on rating,
// creating the card on first review.
func (s *FlashcardService) Review(ctx context.Context, userID int64, question string, rating fsrs.Rating) (card *models.Card, reviewLog *models.ReviewLog, err error) {
	if userID == 0 {
		return nil, nil, ErrGuestReview
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now().UTC()
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO cards (user_id, question_key, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, question_key) DO NOTHING;
	`, userID, question, now, now); err != nil {
		return nil, nil, fmt.Errorf("ensure card: %w", err)
	}

	card = &models.Card{}
	row := tx.QueryRowContext(ctx, `
		SELECT id, user_id, question_key, due, stability, difficulty, elapsed_days, scheduled_days,
		       reps, lapses, state, last_review, created_at, updated_at
		FROM cards
		WHERE user_id = ? AND question_key = ?;
	`, userID, question)
	if err = scanCard(row, card); err != nil {
		return nil, nil, err
	}

	scheduling := s.params.Repeat(card.ToFSRSCard(), now)
	info, ok := scheduling[rating]
	if !ok {
		err = fmt.Errorf("rating %d not supported", rating)
		return nil, nil, err
	}
	card.ApplyFSRSCard(info.Card)
	card.UpdatedAt = now

	if _, err = tx.ExecContext(ctx, `
		UPDATE cards
		SET due = ?, stability = ?, difficulty = ?, elapsed_days = ?, scheduled_days = ?,
		    reps = ?, lapses = ?, state = ?, last_review = ?, updated_at = ?
		WHERE id = ?;
	`,
		nullTimePtr(card.Due),
		card.Stability,
		card.Difficulty,
		card.ElapsedDays,
		card.ScheduledDays,
		card.Reps,
		card.Lapses,
		card.State,
		nullTimePtr(card.LastReview),
		card.UpdatedAt,
		card.ID,
	); err != nil {
		return nil, nil, fmt.Errorf("update card %d: %w", card.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, rating, scheduled_days, elapsed_days, state, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, card.ID, info.ReviewLog.Rating, info.ReviewLog.ScheduledDays, info.ReviewLog.ElapsedDays, info.ReviewLog.State, now); err != nil {
		return nil, nil, fmt.Errorf("insert review log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit review: %w", err)
	}

	s.log.Debug("card reviewed",
		zap.Int64("card", card.ID),
		zap.Int("rating", int(rating)),
		zap.Int("scheduled_days", card.ScheduledDays),
	)

	return card, &models.ReviewLog{
		CardID:        card.ID,
		Rating:        int(info.ReviewLog.Rating),
		ScheduledDays: int(info.ReviewLog.ScheduledDays),
		ElapsedDays:   int(info.ReviewLog.ElapsedDays),
		State:         int(info.ReviewLog.State),
		ReviewedAt:    now,
	}, nil
}

func nullTimePtr(t sql.NullTime) any {
	if t.Valid {
		return t.Time
	}
	return nil
}
