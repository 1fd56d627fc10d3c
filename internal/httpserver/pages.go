package httpserver

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"tinyfm/internal/listing"
	"tinyfm/internal/stream"
)

//go:embed web/*.html
var embeddedWeb embed.FS

var pages = template.Must(template.ParseFS(embeddedWeb, "web/*.html"))

type loginPage struct {
	Title  string
	Failed bool
}

type crumb struct {
	Name string
	Rel  string
}

type row struct {
	Name     string
	Rel      string
	IsDir    bool
	Size     string
	Modified string
	Thumb    bool
}

type listPage struct {
	Title  string
	Path   string
	AuthOn bool
	Crumbs []crumb
	Rows   []row
}

func newListPage(title, rel string, authOn bool, entries []listing.Entry) listPage {
	p := listPage{Title: title, Path: rel, AuthOn: authOn, Rows: make([]row, 0, len(entries))}
	if rel != "" {
		acc := ""
		for _, part := range strings.Split(rel, "/") {
			acc = joinRel(acc, part)
			p.Crumbs = append(p.Crumbs, crumb{Name: part, Rel: acc})
		}
	}
	for _, e := range entries {
		r := row{
			Name:     e.Name,
			Rel:      joinRel(rel, e.Name),
			IsDir:    e.IsDir,
			Modified: formatDate(e.ModTime),
		}
		if !e.IsDir {
			r.Size = formatSize(e.Size)
			r.Thumb = stream.IsImage(e.Name)
		}
		p.Rows = append(p.Rows, r)
	}
	return p
}

// render executes into a buffer first so a template error still yields a
// clean 500 instead of a half-written page.
func render(w http.ResponseWriter, name string, data any) error {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func formatSize(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatDate(t time.Time) string {
	return t.Format("01/02/2006 03:04 PM")
}
