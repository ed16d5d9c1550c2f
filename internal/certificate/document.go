package certificate

import (
	"bytes"
	"fmt"
	"html/template"
)

// Document is the printable layout of a certificate, kept apart from markup.
type Document struct {
	Brand     string `json:"brand"`
	Title     string `json:"title"`
	Presented string `json:"presented"`
	Recipient string `json:"recipient"`
	Statement string `json:"statement"`
	Course    string `json:"course"`
	Awarded   string `json:"awarded"`
	Serial    string `json:"serial"`
}

// NewDocument lays out cert.
func NewDocument(cert Certificate) Document {
	return Document{
		Brand:     "AI Learning",
		Title:     "Certificate of Completion",
		Presented: "This certificate is proudly presented to",
		Recipient: cert.UserName,
		Statement: "for successfully completing the course",
		Course:    cert.CourseName,
		Awarded:   "Awarded on: " + cert.Date,
		Serial:    cert.Serial,
	}
}

var documentTmpl = template.Must(template.New("certificate").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}} - {{.Course}}</title></head>
<body>
<div class="certificate">
<div class="brand">{{.Brand}}</div>
<div class="title">{{.Title}}</div>
<div class="subtitle">{{.Presented}}</div>
<div class="name">{{.Recipient}}</div>
<div class="subtitle">{{.Statement}}</div>
<div class="course">&quot;{{.Course}}&quot;</div>
<div class="date">{{.Awarded}}</div>
{{if .Serial}}<div class="serial">{{.Serial}}</div>{{end}}
</div>
</body>
</html>
`))

// HTML renders the document as a standalone page.
func (d Document) HTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("rendering certificate: %w", err)
	}
	return buf.Bytes(), nil
}
