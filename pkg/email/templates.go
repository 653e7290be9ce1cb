package email

import (
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

const dateLayout = "January 2, 2006"

var templateFuncs = template.FuncMap{
	// Dates are shown in UTC, the timezone subscription periods are computed in.
	"date": func(t time.Time) string {
		return t.UTC().Format(dateLayout)
	},
	"plural": func(n int, singular, plural string) string {
		if n == 1 {
			return singular
		}
		return plural
	},
}

func loadTemplates() (*template.Template, error) {
	return template.New("email").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
}
