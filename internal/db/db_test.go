package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSchema(t *testing.T) {
	t.Parallel()

	conn, err := Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{"users", "score_history", "bookmarks", "wrong_answers", "cards", "review_logs"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "quiz.db")
	conn, err := Open(path)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO users (username, password_hash, display_name, created_at) VALUES ('ada', 'x', 'Ada', ?)`, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	conn, err = Open(path)
	require.NoError(t, err)
	defer conn.Close()

	var count int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestConstraints(t *testing.T) {
	t.Parallel()

	conn, err := Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	_, err = conn.Exec(`INSERT INTO score_history (user_id, taken_at, difficulty, score, total, percent) VALUES (999, ?, 'Easy', 1, 5, 20)`, now)
	assert.Error(t, err, "foreign keys are enforced")

	res, err := conn.Exec(`INSERT INTO users (username, password_hash, display_name, created_at) VALUES ('ada', 'x', 'Ada', ?)`, now)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = conn.Exec(`INSERT INTO score_history (user_id, taken_at, difficulty, score, total, percent) VALUES (?, ?, 'Brutal', 1, 5, 20)`, id, now)
	assert.Error(t, err, "difficulty is checked")

	_, err = conn.Exec(`INSERT INTO users (username, password_hash, display_name, created_at) VALUES ('ada', 'y', 'Other', ?)`, now)
	assert.Error(t, err, "usernames are unique")

	_, err = conn.Exec(`INSERT INTO bookmarks (user_id, question, created_at) VALUES (?, 'q', ?)`, id, now)
	require.NoError(t, err)
	_, err = conn.Exec(`DELETE FROM users WHERE id = ?`, id)
	require.NoError(t, err)
	var count int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM bookmarks`).Scan(&count))
	assert.Zero(t, count, "bookmarks cascade with their user")
}
