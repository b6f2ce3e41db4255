package digest

import (
	"bytes"
	"html/template"
	"time"

	"gamecatalog/backend/internal/models"
)

var bodyTemplate = template.Must(template.New("digest").Parse(`<h1>{{.Heading}}</h1><ul>
{{- range .Games}}<li>{{.Title}} - Release: {{.Date}}</li>{{end -}}
</ul>`))

type renderedGame struct {
	Title string
	Date  string
}

// Render builds the digest body. Titles are HTML-escaped and release dates
// are formatted with layout in loc.
func Render(heading string, games []models.VideoGame, layout string, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	data := struct {
		Heading string
		Games   []renderedGame
	}{Heading: heading, Games: make([]renderedGame, 0, len(games))}
	for _, g := range games {
		data.Games = append(data.Games, renderedGame{
			Title: g.Title,
			Date:  g.ReleaseDate.In(loc).Format(layout),
		})
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
