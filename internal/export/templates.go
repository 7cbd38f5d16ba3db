package export

import (
	"bytes"
	"html/template"
	"time"
)

var proposalTemplate = template.Must(template.New("proposal").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(proposalTemplateHTML))

// TemplateData holds data for proposal one-pager rendering.
type TemplateData struct {
	Title            string
	Agency           string
	Description      string
	StageName        string
	Status           string
	EstimatedValue   string
	DueDate          string
	OrganizationName string
	UpdatedAt        time.Time
	Checklist        []ChecklistItemInfo
}

// RenderProposalHTML renders the one-pager template with provided data.
func RenderProposalHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := proposalTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const proposalTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #1a1a1a; }
    h1 { border-bottom: 2px solid #14532d; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .facts { width: 100%; border-collapse: collapse; margin-bottom: 2rem; }
    .facts td { border: 1px solid #ddd; padding: 0.5rem 0.75rem; }
    .facts td:first-child { font-weight: bold; background: #f5f5f5; width: 30%; }
    .checklist { list-style: none; padding: 0; }
    .checklist li { padding: 0.25rem 0; }
    .done { color: #14532d; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.OrganizationName}} | Updated {{formatDate .UpdatedAt "Jan 2, 2006"}}</div>
  <table class="facts">
    <tr><td>Agency</td><td>{{.Agency}}</td></tr>
    <tr><td>Stage</td><td>{{.StageName}}</td></tr>
    <tr><td>Status</td><td>{{.Status}}</td></tr>
    {{if .EstimatedValue}}<tr><td>Estimated Value</td><td>{{.EstimatedValue}}</td></tr>{{end}}
    {{if .DueDate}}<tr><td>Due Date</td><td>{{.DueDate}}</td></tr>{{end}}
  </table>
  {{if .Description}}<h2>Summary</h2><p>{{.Description}}</p>{{end}}
  {{if .Checklist}}
  <h2>Stage Checklist</h2>
  <ul class="checklist">
    {{range .Checklist}}<li{{if .Completed}} class="done"{{end}}>{{if .Completed}}&#9745;{{else}}&#9744;{{end}} {{.Label}}</li>{{end}}
  </ul>
  {{end}}
</body>
</html>`
