package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"quizgenius/internal/models"
)

// ProgressStore keeps one user's score history, bookmarks and mistakes.
// Bookmarks are keyed by question text.
type ProgressStore interface {
	AppendScore(ctx context.Context, entry models.ScoreEntry) (models.ScoreEntry, error)
	Scores(ctx context.Context) ([]models.ScoreEntry, error)
	ClearScores(ctx context.Context) error
	ToggleBookmark(ctx context.Context, question string) (bool, error)
	Bookmarks(ctx context.Context) ([]string, error)
	ReplaceWrongAnswers(ctx context.Context, questions []models.Question) error
	WrongAnswers(ctx context.Context) ([]models.Question, error)
}

// ProgressService hands out per-user stores and computes dashboard stats.
type ProgressService struct {
	db  *sql.DB
	log *zap.Logger
}

func NewProgressService(db *sql.DB, log *zap.Logger) *ProgressService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProgressService{db: db, log: log}
}

// For returns the store backing ws: the database for registered users, the
// workspace itself for guests.
func (s *ProgressService) For(ws *Workspace) ProgressStore {
	if ws.Guest || ws.UserID == 0 {
		if ws.Progress == nil {
			return NewMemoryProgress()
		}
		return ws.Progress
	}
	return &SQLProgress{db: s.db, userID: ws.UserID}
}

// SaveScore records a graded test and replaces the stored mistakes with the
// questions answered wrongly.
func (s *ProgressService) SaveScore(ctx context.Context, store ProgressStore, level models.Difficulty, result TestResult, source string, now time.Time) (models.ScoreEntry, error) {
	if source == "" {
		source = "Unknown"
	}
	entry, err := store.AppendScore(ctx, models.ScoreEntry{
		TakenAt:    now.UTC(),
		Difficulty: level,
		Score:      result.Score,
		Total:      result.Total,
		Percent:    Percent(result.Score, result.Total),
		Source:     source,
	})
	if err != nil {
		return models.ScoreEntry{}, err
	}
	if err := store.ReplaceWrongAnswers(ctx, result.Wrong); err != nil {
		return models.ScoreEntry{}, err
	}
	s.log.Info("score saved",
		zap.String("difficulty", string(level)),
		zap.Int("score", entry.Score),
		zap.Int("total", entry.Total),
	)
	return entry, nil
}

// Stats summarises store. questions is the size of the current study set.
func (s *ProgressService) Stats(ctx context.Context, store ProgressStore, questions int) (models.ProgressStats, []models.ScoreEntry, error) {
	history, err := store.Scores(ctx)
	if err != nil {
		return models.ProgressStats{}, nil, err
	}
	bookmarks, err := store.Bookmarks(ctx)
	if err != nil {
		return models.ProgressStats{}, nil, err
	}
	wrong, err := store.WrongAnswers(ctx)
	if err != nil {
		return models.ProgressStats{}, nil, err
	}

	stats := models.ProgressStats{
		TestsTaken: len(history),
		Bookmarks:  len(bookmarks),
		Mistakes:   len(wrong),
		Questions:  questions,
	}
	if len(history) > 0 {
		var sum float64
		for _, e := range history {
			sum += e.Percent
			stats.BestPercent = max(stats.BestPercent, e.Percent)
		}
		stats.AveragePercent = roundTenth(sum / float64(len(history)))
	}
	return stats, history, nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// SQLProgress persists progress for a registered user.
type SQLProgress struct {
	db     *sql.DB
	userID int64
}

func (p *SQLProgress) AppendScore(ctx context.Context, entry models.ScoreEntry) (models.ScoreEntry, error) {
	entry.UserID = p.userID
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO score_history (user_id, taken_at, difficulty, score, total, percent, source)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`, entry.UserID, entry.TakenAt, string(entry.Difficulty), entry.Score, entry.Total, entry.Percent, entry.Source)
	if err != nil {
		return models.ScoreEntry{}, fmt.Errorf("insert score: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	if err != nil {
		return models.ScoreEntry{}, fmt.Errorf("score id: %w", err)
	}
	return entry, nil
}

func (p *SQLProgress) Scores(ctx context.Context) ([]models.ScoreEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, taken_at, difficulty, score, total, percent, source
		FROM score_history
		WHERE user_id = ?
		ORDER BY taken_at ASC, id ASC;
	`, p.userID)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var entries []models.ScoreEntry
	for rows.Next() {
		var e models.ScoreEntry
		var diff string
		if err := rows.Scan(&e.ID, &e.UserID, &e.TakenAt, &diff, &e.Score, &e.Total, &e.Percent, &e.Source); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		e.Difficulty = models.Difficulty(diff)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *SQLProgress) ClearScores(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM score_history WHERE user_id = ?;`, p.userID); err != nil {
		return fmt.Errorf("clear scores: %w", err)
	}
	return nil
}

func (p *SQLProgress) ToggleBookmark(ctx context.Context, question string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE user_id = ? AND question = ?;`, p.userID, question)
	if err != nil {
		return false, fmt.Errorf("remove bookmark: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO bookmarks (user_id, question, created_at) VALUES (?, ?, ?);
	`, p.userID, question, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("add bookmark: %w", err)
	}
	return true, nil
}

func (p *SQLProgress) Bookmarks(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT question FROM bookmarks WHERE user_id = ? ORDER BY created_at ASC;
	`, p.userID)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (p *SQLProgress) ReplaceWrongAnswers(ctx context.Context, questions []models.Question) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM wrong_answers WHERE user_id = ?;`, p.userID); err != nil {
		return fmt.Errorf("clear wrong answers: %w", err)
	}
	now := time.Now().UTC()
	for i, q := range questions {
		payload, mErr := json.Marshal(q)
		if mErr != nil {
			err = fmt.Errorf("encode wrong answer: %w", mErr)
			return err
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO wrong_answers (user_id, position, payload, created_at) VALUES (?, ?, ?, ?);
		`, p.userID, i, string(payload), now); err != nil {
			return fmt.Errorf("insert wrong answer: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit wrong answers: %w", err)
	}
	return nil
}

func (p *SQLProgress) WrongAnswers(ctx context.Context) ([]models.Question, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT payload FROM wrong_answers WHERE user_id = ? ORDER BY position ASC;
	`, p.userID)
	if err != nil {
		return nil, fmt.Errorf("query wrong answers: %w", err)
	}
	defer rows.Close()

	var out []models.Question
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan wrong answer: %w", err)
		}
		var q models.Question
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			return nil, fmt.Errorf("decode wrong answer: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// MemoryProgress is a ProgressStore that lives only as long as its workspace.
type MemoryProgress struct {
	mu        sync.Mutex
	nextID    int64
	scores    []models.ScoreEntry
	bookmarks []string
	wrong     []models.Question
}

func NewMemoryProgress() *MemoryProgress {
	return &MemoryProgress{}
}

func (m *MemoryProgress) AppendScore(_ context.Context, entry models.ScoreEntry) (models.ScoreEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	m.scores = append(m.scores, entry)
	return entry, nil
}

func (m *MemoryProgress) Scores(context.Context) ([]models.ScoreEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.scores), nil
}

func (m *MemoryProgress) ClearScores(context.Context) error {
	m.mu.Lock()
	m.scores = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryProgress) ToggleBookmark(_ context.Context, question string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := slices.Index(m.bookmarks, question); i >= 0 {
		m.bookmarks = slices.Delete(m.bookmarks, i, i+1)
		return false, nil
	}
	m.bookmarks = append(m.bookmarks, question)
	return true, nil
}

func (m *MemoryProgress) Bookmarks(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.bookmarks), nil
}

func (m *MemoryProgress) ReplaceWrongAnswers(_ context.Context, questions []models.Question) error {
	m.mu.Lock()
	m.wrong = cloneQuestions(questions)
	m.mu.Unlock()
	return nil
}

func (m *MemoryProgress) WrongAnswers(context.Context) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneQuestions(m.wrong), nil
}
