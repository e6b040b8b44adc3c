package reminders

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Fee Reminder]
Student: {{.MemberName}}
Fee: {{.Title}}
Outstanding: {{.Currency}}{{.Balance}}
Due Date: {{.DueDate}}
{{- if gt .DaysOverdue 0}}
Overdue: {{.DaysOverdue}} day(s)
{{- end}}
Please clear the outstanding amount at the earliest.`

// TemplateData provides fields for rendering reminder content.
type TemplateData struct {
	CoachingID  string
	MemberID    string
	MemberName  string
	Phone       string
	RecordID    string
	Title       string
	Currency    string
	Balance     string
	DueDate     string
	DaysOverdue int
}

// Template renders reminder content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a reminder template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("fee-reminder").Option("missingkey=error").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("reminder template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
