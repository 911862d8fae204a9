package notifications

import (
	"bytes"
	"html/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var emailTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2933;">
  <p style="font-size: 12px; text-transform: uppercase; color: #c0392b;">{{.PriorityLabel}} notification</p>
  <h1 style="font-size: 20px;">{{.Title}}</h1>
  {{- if .Body}}
  <p>{{.Body}}</p>
  {{- end}}
  {{- if .ActionURL}}
  <p><a href="{{.ActionURL}}">{{.ActionLabel}}</a></p>
  {{- end}}
</body>
</html>
`))

type emailView struct {
	PriorityLabel string
	Title         string
	Body          string
	ActionURL     string
	ActionLabel   string
}

// priorityLabel title-cases p. A Caser keeps state between calls, so each
// call gets its own.
func priorityLabel(p Priority) string {
	return cases.Title(language.English).String(string(p))
}

// renderEmail builds the subject and HTML body for n.
func renderEmail(n Notification) (subject, html string, err error) {
	view := emailView{
		PriorityLabel: priorityLabel(n.Priority),
		Title:         n.Title,
		Body:          n.Body,
	}
	if n.Action != nil {
		view.ActionURL = n.Action.URL
		view.ActionLabel = n.Action.Label
		if view.ActionLabel == "" {
			view.ActionLabel = "Open"
		}
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", "", err
	}
	return "[" + view.PriorityLabel + "] " + n.Title, buf.String(), nil
}
