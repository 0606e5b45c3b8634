package textproc

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxTopics       = 25
	focusWindowSize = 3000
)

var (
	headingKeyword  = regexp.MustCompile(`(?i)^(chapter|section|unit|topic|part|module)\s+\d+`)
	numberedHeading = regexp.MustCompile(`^\d+[.)]\s+[A-Z]`)
)

// ExtractTopics collects heading-like lines: "Chapter 3 ...", "2. Title" or short
// all-caps lines. Duplicates are dropped and at most 25 topics are returned.
func ExtractTopics(text string) []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		n := len([]rune(line))
		if n <= 3 || n >= 90 {
			continue
		}
		if !isHeading(line) {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		topics = append(topics, line)
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}

func isHeading(line string) bool {
	if headingKeyword.MatchString(line) || numberedHeading.MatchString(line) {
		return true
	}
	words := len(strings.Fields(line))
	return isUpper(line) && words > 1 && words <= 8
}

// isUpper reports whether line has at least one cased letter and no lowercase ones.
func isUpper(line string) bool {
	cased := false
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

// FocusText narrows text to the sections following each selected topic. The
// full text is returned when no topic is found.
func FocusText(text string, topics []string) string {
	if len(topics) == 0 {
		return text
	}
	lower := strings.ToLower(text)
	fold := len(lower) == len(text)
	var b strings.Builder
	for _, topic := range topics {
		var idx int
		if fold {
			idx = strings.Index(lower, strings.ToLower(topic))
		} else {
			idx = strings.Index(text, topic)
		}
		if idx < 0 {
			continue
		}
		end := min(idx+focusWindowSize, len(text))
		for end < len(text) && !utf8.RuneStart(text[end]) {
			end++
		}
		b.WriteString(text[idx:end])
		b.WriteString("\n\n")
	}
	if strings.TrimSpace(b.String()) == "" {
		return text
	}
	return b.String()
}

// MaxQuestions caps how many study questions a document of wordCount words may yield.
func MaxQuestions(wordCount int) int {
	switch {
	case wordCount < 500:
		return 10
	case wordCount < 1000:
		return 25
	case wordCount < 2000:
		return 50
	case wordCount < 5000:
		return 100
	default:
		return 150
	}
}
