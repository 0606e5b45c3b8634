package services

import (
	"html"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizgenius/internal/models"
)

func TestExportHTML(t *testing.T) {
	t.Parallel()

	qs := []models.Question{
		{
			Question: `Is 1 < 2 && "x" > 'y'?`,
			Options:  []string{"A) <b>yes</b>", "B) no", "  ", "D) maybe"},
			Correct:  "A",
			Type:     models.QuestionMCQ,
		},
		{Question: "Plain", Options: []string{"A) True", "B) False"}, Correct: "B", Type: models.QuestionTrueFalse},
	}
	now := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)

	out, err := ExportHTML(qs, "Bio <Quiz>", now)
	require.NoError(t, err)
	page := string(out)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.NotContains(t, page, "<script")
	assert.NotContains(t, page, "<b>yes</b>")
	assert.NotContains(t, page, "Bio <Quiz>")
	assert.Contains(t, page, "March 07, 2026 · QuizGenius AI")
	assert.Contains(t, page, "Q1 · MCQ")
	assert.Contains(t, page, "Q2 · TF")
	assert.Equal(t, 2, strings.Count(page, `class="correct"`))
	assert.Equal(t, 5, strings.Count(page, "<li"))
	assert.Contains(t, page, `<li class="correct">B) False</li>`)
}

func TestExportHTMLRoundTripsQuestionText(t *testing.T) {
	t.Parallel()

	texts := []string{
		`Tom & Jerry's "best" <episode>?`,
		"Unicode ✓ déjà vu",
		"<script>alert(1)</script>",
	}
	for _, text := range texts {
		out, err := ExportHTML([]models.Question{{Question: text, Options: []string{"A) x"}, Correct: "A"}}, "t", time.Now())
		require.NoError(t, err)

		page := string(out)
		start := strings.Index(page, `<div class="q-text">`) + len(`<div class="q-text">`)
		end := strings.Index(page[start:], "</div>")
		require.Greater(t, end, -1)
		assert.Equal(t, text, html.UnescapeString(page[start:start+end]))
	}
}
