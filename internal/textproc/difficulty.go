package textproc

import (
	"regexp"
	"strings"

	"quizgenius/internal/models"
)

const (
	easyBelow = 12.0
	hardAbove = 20.0

	longWordLen = 9
)

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// DetectDifficulty labels text Easy, Medium or Hard from its lexical complexity.
func DetectDifficulty(text string) models.Difficulty {
	if len(strings.Fields(text)) == 0 {
		return models.DifficultyMedium
	}
	return ClassifyScore(ComplexityScore(text))
}

// ComplexityScore combines average word length, words per sentence and the
// share of long words:
//
//	avg*1.5 + wordsPerSentence*0.15 + longPct*0.4
func ComplexityScore(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	letters, long := 0, 0
	for _, w := range words {
		n := len([]rune(w))
		letters += n
		if n > longWordLen {
			long++
		}
	}
	avg := float64(letters) / float64(len(words))
	longPct := float64(long) / float64(len(words)) * 100

	sentences := 0
	for _, s := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}
	perSentence := float64(len(words)) / float64(max(sentences, 1))

	return avg*1.5 + perSentence*0.15 + longPct*0.4
}

func ClassifyScore(score float64) models.Difficulty {
	switch {
	case score < easyBelow:
		return models.DifficultyEasy
	case score > hardAbove:
		return models.DifficultyHard
	default:
		return models.DifficultyMedium
	}
}
