package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"quizgenius/internal/models"
)

func TestParseMCQ(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         string
		wantQ       string
		wantOptions []string
		wantCorrect string
	}{
		{
			name: "well formed",
			raw: "Question: What is the powerhouse of the cell?\n" +
				"A) Nucleus\nB) Mitochondria\nC) Ribosome\nD) Golgi\nCorrect Answer: B",
			wantQ:       "What is the powerhouse of the cell?",
			wantOptions: []string{"A) Nucleus", "B) Mitochondria", "C) Ribosome", "D) Golgi"},
			wantCorrect: "B",
		},
		{
			name: "case insensitive labels and extra text",
			raw: "Sure! Here it is.\nquestion: Which gas do plants absorb?\n" +
				"A) Oxygen\nB) Nitrogen\nC) Carbon dioxide\nD) Helium\ncorrect answer: C) Carbon dioxide",
			wantQ:       "Which gas do plants absorb?",
			wantOptions: []string{"A) Oxygen", "B) Nitrogen", "C) Carbon dioxide", "D) Helium"},
			wantCorrect: "C",
		},
		{
			name:        "option with inline marker is cut",
			raw:         "Question: Q?\nA) Alpha Correct Answer: A\nB) Beta\nC) Gamma Context: noise\nD) Delta\nCorrect Answer: D",
			wantQ:       "Q?",
			wantOptions: []string{"A) Alpha", "B) Beta", "C) Gamma", "D) Delta"},
			wantCorrect: "D",
		},
		{
			name:        "missing parts fall back",
			raw:         "A) Only one\nCorrect Answer: Z",
			wantQ:       "Parsing error",
			wantOptions: []string{"A) Only one", "B) --", "C) --", "D) --"},
			wantCorrect: "A",
		},
		{
			name:        "empty",
			raw:         "",
			wantQ:       "Parsing error",
			wantOptions: []string{"A) --", "B) --", "C) --", "D) --"},
			wantCorrect: "A",
		},
		{
			name:        "lowercase letter",
			raw:         "Question: x\nA) 1\nB) 2\nC) 3\nD) 4\nCorrect Answer: d",
			wantQ:       "x",
			wantOptions: []string{"A) 1", "B) 2", "C) 3", "D) 4"},
			wantCorrect: "D",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := ParseMCQ(tt.raw)
			assert.Equal(t, tt.wantQ, q.Question)
			assert.Equal(t, tt.wantOptions, q.Options)
			assert.Equal(t, tt.wantCorrect, q.Correct)
			assert.Equal(t, models.QuestionMCQ, q.Type)
		})
	}
}

func TestParseMCQAlwaysYieldsOneLetter(t *testing.T) {
	t.Parallel()

	for _, letter := range []string{"A", "B", "C", "D"} {
		raw := "Question: q\nA) a\nB) b\nC) c\nD) d\nCorrect Answer: " + letter
		q := ParseMCQ(raw)
		assert.Equal(t, letter, q.Correct)
		assert.Len(t, q.Options, 4)
	}
}

func TestParseFillBlank(t *testing.T) {
	t.Parallel()

	raw := "Question: The ___ is the basic unit of life.\nA) cell\nB) atom\nC) organ\nD) tissue\nCorrectAnswer: A"
	q := ParseFillBlank(raw)

	assert.Equal(t, "The ___ is the basic unit of life.", q.Question)
	assert.Equal(t, []string{"A) cell", "B) atom", "C) organ", "D) tissue"}, q.Options)
	assert.Equal(t, "A", q.Correct)
	assert.Equal(t, models.QuestionFillBlank, q.Type)

	// markers are kept in fill-in-the-blank options
	q = ParseFillBlank("Question: q\nA) x Context: y\nCorrect Answer: B")
	assert.Equal(t, "A) x Context: y", q.Options[0])
	assert.Equal(t, "B", q.Correct)
}

func TestParseTrueFalse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         string
		wantQ       string
		wantCorrect string
	}{
		{"true", "Question: Water boils at 100C at sea level.\nAnswer: True", "Water boils at 100C at sea level.", "A"},
		{"false", "Question: The sun orbits the earth.\nAnswer: False", "The sun orbits the earth.", "B"},
		{"lowercase", "question: x\nanswer: true", "x", "A"},
		{"garbage answer is false", "Question: x\nAnswer: maybe", "x", "B"},
		{"missing answer defaults true", "Question: x", "x", "A"},
		{"missing question", "Answer: False", "Parsing error", "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := ParseTrueFalse(tt.raw)
			assert.Equal(t, tt.wantQ, q.Question)
			assert.Equal(t, tt.wantCorrect, q.Correct)
			assert.Equal(t, []string{"A) True", "B) False"}, q.Options)
			assert.Equal(t, models.QuestionTrueFalse, q.Type)
		})
	}
}

func TestParseQuestionDispatch(t *testing.T) {
	t.Parallel()

	assert.Equal(t, models.QuestionTrueFalse, ParseQuestion("Question: x\nAnswer: True", models.QuestionTrueFalse).Type)
	assert.Equal(t, models.QuestionFillBlank, ParseQuestion("", models.QuestionFillBlank).Type)
	assert.Equal(t, models.QuestionMCQ, ParseQuestion("", models.QuestionMCQ).Type)
}

func TestErrorPlaceholder(t *testing.T) {
	t.Parallel()

	long := errors.New(strings.Repeat("x", 200))
	q := errorPlaceholder(long, models.QuestionTrueFalse)

	assert.Equal(t, "[Error: "+strings.Repeat("x", 80)+"]", q.Question)
	assert.Equal(t, []string{"A) --", "B) --", "C) --", "D) --"}, q.Options)
	assert.Equal(t, "A", q.Correct)
	assert.Equal(t, models.QuestionTrueFalse, q.Type)
}
