package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// Render executes a named email template. Lang selects the fr or en block.
func Render(name, lang string, data map[string]any) (string, error) {
	if lang != "en" {
		lang = "fr"
	}
	view := map[string]any{"Lang": lang, "AppName": ""}
	for k, v := range data {
		view[k] = v
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".html", view); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
