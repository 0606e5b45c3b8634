package services

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"quizgenius/internal/models"
)

const exportFilename = "quiz.html"

var exportTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html><head><meta charset="UTF-8"><title>{{.Title}}</title>
<style>
body{font-family:system-ui;max-width:800px;margin:3rem auto;padding:0 1.5rem;background:#0a0a14;color:#e8e8ff;}
h1{color:#e8e8ff;}
.meta{color:#5a5a7a;}
.q{margin-bottom:1.5rem;padding:1.5rem;border:1px solid #2a2a3e;border-radius:12px;background:#12121f;}
.q-label{font-size:.6rem;font-weight:700;text-transform:uppercase;color:#5a5a7a;margin-bottom:.5rem;}
.q-text{font-size:1rem;font-weight:700;color:#e8e8ff;margin-bottom:.875rem;}
ul{list-style:none;padding:0;margin:0;}
li{padding:.5rem 1rem;border-radius:6px;margin:.25rem 0;background:#1a1a2e;border-left:3px solid transparent;color:#8892a4;font-size:.875rem;}
li.correct{background:#0d2b1f;border-left-color:#00ff87;color:#00ff87;}
</style>
</head><body><h1>{{.Title}}</h1>
<p class="meta">{{.Date}} · QuizGenius AI</p>
{{range .Questions}}<div class="q"><div class="q-label">Q{{.Number}} · {{.Type}}</div>
<div class="q-text">{{.Text}}</div>
<ul>{{range .Options}}<li{{if .Correct}} class="correct"{{end}}>{{.Text}}</li>{{end}}</ul></div>
{{end}}</body></html>
`))

type exportOption struct {
	Text    string
	Correct bool
}

type exportQuestion struct {
	Number  int
	Type    models.QuestionType
	Text    string
	Options []exportOption
}

// ExportHTML renders questions as a standalone page with inline CSS and no
// scripts. The correct option of each question is highlighted.
func ExportHTML(questions []models.Question, title string, now time.Time) ([]byte, error) {
	data := struct {
		Title     string
		Date      string
		Questions []exportQuestion
	}{
		Title: title,
		Date:  now.Format("January 02, 2006"),
	}

	for i, q := range questions {
		qt := q.Type
		if qt == "" {
			qt = models.QuestionMCQ
		}
		eq := exportQuestion{Number: i + 1, Type: qt, Text: q.Question}
		for _, opt := range q.Options {
			trimmed := strings.TrimSpace(opt)
			if trimmed == "" {
				continue
			}
			eq.Options = append(eq.Options, exportOption{
				Text:    opt,
				Correct: q.Correct != "" && strings.HasPrefix(trimmed, q.Correct),
			})
		}
		data.Questions = append(data.Questions, eq)
	}

	var buf bytes.Buffer
	if err := exportTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render export: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportFilename is the attachment name used for downloads.
func ExportFilename() string {
	return exportFilename
}
