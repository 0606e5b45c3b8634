package services

import (
	"fmt"
	"strings"

	"quizgenius/internal/models"
)

const (
	promptContextLimit   = 1400
	questionContextLimit = 300
	errorDetailLimit     = 80
)

func levelInstruction(d models.Difficulty) string {
	switch d {
	case models.DifficultyEasy:
		return "BASIC recall"
	case models.DifficultyHard:
		return "ANALYSIS"
	default:
		return "COMPREHENSION"
	}
}

// BuildPrompt renders the single-question template for the given type and
// level. The passage is cut to its first 1400 characters.
func BuildPrompt(passage string, qt models.QuestionType, d models.Difficulty) string {
	ctx := truncateRunes(passage, promptContextLimit)
	lvl := levelInstruction(d)

	switch qt {
	case models.QuestionTrueFalse:
		return fmt.Sprintf("Create ONE True/False question (%s).\n"+
			"OUTPUT ONLY:\n"+
			"Question: [statement]\n"+
			"Answer: True\n\n"+
			"Context:\n%s", lvl, ctx)
	case models.QuestionFillBlank:
		return fmt.Sprintf("Create ONE fill-in-blank MCQ (%s). Use ___ for blank.\n"+
			"OUTPUT ONLY:\n"+
			"Question: [sentence with ___]\n"+
			"A) [correct]\n"+
			"B) [wrong]\n"+
			"C) [wrong]\n"+
			"D) [wrong]\n"+
			"Correct Answer: A\n\n"+
			"Context:\n%s", lvl, ctx)
	default:
		return fmt.Sprintf("Generate ONE MCQ (%s).\n"+
			"OUTPUT ONLY:\n"+
			"Question: [question]\n"+
			"A) [option]\n"+
			"B) [option]\n"+
			"C) [option]\n"+
			"D) [option]\n"+
			"Correct Answer: [A/B/C/D]\n\n"+
			"Context:\n%s", lvl, ctx)
	}
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// sanitizeForPrompt collapses whitespace and shortens the input with an ellipsis.
func sanitizeForPrompt(input string, limit int) string {
	collapsed := strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
	if limit <= 0 {
		return collapsed
	}
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	if limit > 3 {
		return string(runes[:limit-3]) + "..."
	}
	return string(runes[:limit])
}
