package dashboard

import (
	"embed"
	"html/template"
)

//go:embed templates
var fsys embed.FS

//go:embed static
var staticFS embed.FS

var tmpl = template.Must(template.New("").ParseFS(fsys, "templates/*.html"))
