package services

import (
	"regexp"
	"strings"

	"quizgenius/internal/models"
)

const parseErrorQuestion = "Parsing error"

var (
	optionLine        = regexp.MustCompile(`^([A-D])\)`)
	correctLineMCQ    = regexp.MustCompile(`(?i)^correct answer\s*:`)
	correctLineFIB    = regexp.MustCompile(`(?i)^correct\s*answer\s*:`)
	answerLineTF      = regexp.MustCompile(`(?i)^answer\s*:`)
	standaloneLetter  = regexp.MustCompile(`\b([A-D])\b`)
	optionStopMarkers = []string{"Context:", "Correct Answer:", "Question:"}
	letters           = []string{"A", "B", "C", "D"}
)

// ParseQuestion dispatches to the parser for qt.
func ParseQuestion(raw string, qt models.QuestionType) models.Question {
	switch qt {
	case models.QuestionTrueFalse:
		return ParseTrueFalse(raw)
	case models.QuestionFillBlank:
		return ParseFillBlank(raw)
	default:
		return ParseMCQ(raw)
	}
}

// ParseMCQ extracts a four-option question. Missing parts fall back to
// "Parsing error", "X) --" and correct letter A.
func ParseMCQ(raw string) models.Question {
	return parseLettered(raw, correctLineMCQ, true, models.QuestionMCQ)
}

// ParseFillBlank is ParseMCQ without trimming template markers from options.
func ParseFillBlank(raw string) models.Question {
	return parseLettered(raw, correctLineFIB, false, models.QuestionFillBlank)
}

func parseLettered(raw string, correctLine *regexp.Regexp, cutMarkers bool, qt models.QuestionType) models.Question {
	question := ""
	opts := map[string]string{}
	correct := ""

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case hasPrefixFold(line, "question:"):
			question = afterColon(line)
		case optionLine.MatchString(line):
			letter := line[:1]
			txt := strings.TrimSpace(line[2:])
			if cutMarkers {
				txt = cutAtMarkers(txt)
			}
			if txt != "" {
				opts[letter] = letter + ") " + txt
			}
		case correctLine.MatchString(line):
			if l := correctLetter(afterColon(line)); l != "" {
				correct = l
			}
		}
	}

	if question == "" {
		question = parseErrorQuestion
	}
	options := make([]string, 0, len(letters))
	for _, l := range letters {
		if opt, ok := opts[l]; ok {
			options = append(options, opt)
		} else {
			options = append(options, l+") --")
		}
	}
	if correct == "" {
		correct = "A"
	}
	return models.Question{Question: question, Options: options, Correct: correct, Type: qt}
}

// ParseTrueFalse reads the statement and the Answer line. Anything that does
// not mention "true" on the answer line is False; a missing line means True.
func ParseTrueFalse(raw string) models.Question {
	question := ""
	answer := true

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case hasPrefixFold(line, "question:"):
			question = afterColon(line)
		case answerLineTF.MatchString(line):
			answer = strings.Contains(strings.ToLower(line), "true")
		}
	}

	if question == "" {
		question = parseErrorQuestion
	}
	correct := "A"
	if !answer {
		correct = "B"
	}
	return models.Question{
		Question: question,
		Options:  []string{"A) True", "B) False"},
		Correct:  correct,
		Type:     models.QuestionTrueFalse,
	}
}

// correctLetter finds the answer letter after "Correct Answer:". A standalone
// capital wins; otherwise the first character is accepted in either case.
func correctLetter(rest string) string {
	if m := standaloneLetter.FindStringSubmatch(rest); m != nil {
		return m[1]
	}
	rest = strings.TrimLeft(rest, " ([")
	if rest == "" {
		return ""
	}
	first := strings.ToUpper(rest[:1])
	if strings.Contains("ABCD", first) {
		return first
	}
	return ""
}

func cutAtMarkers(txt string) string {
	for _, marker := range optionStopMarkers {
		if idx := strings.Index(txt, marker); idx >= 0 {
			txt = txt[:idx]
		}
	}
	txt = strings.SplitN(txt, "\n", 2)[0]
	return strings.TrimSpace(txt)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func afterColon(line string) string {
	_, rest, _ := strings.Cut(line, ":")
	return strings.TrimSpace(rest)
}

// errorPlaceholder stands in for a question whose generation failed.
func errorPlaceholder(err error, qt models.QuestionType) models.Question {
	return models.Question{
		Question: "[Error: " + truncateRunes(err.Error(), errorDetailLimit) + "]",
		Options:  []string{"A) --", "B) --", "C) --", "D) --"},
		Correct:  "A",
		Type:     qt,
	}
}
