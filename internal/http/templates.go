package httpapp

import (
	"crypto/md5"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/alphabot-ai/inkpost/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageIndex    = "index"
	pagePost     = "post"
	pageMakePost = "make-post"
	pageLogin    = "login"
	pageRegister = "register"
	pageAbout    = "about"
	pageContact  = "contact"
	pageError    = "error"
)

type Templates struct {
	pages map[string]*template.Template
}

func (t *Templates) Lookup(name string) (*template.Template, bool) {
	page, ok := t.pages[name]
	return page, ok
}

// gravatarURL builds an avatar URL for email with the configured size, rating
// and fallback image.
func gravatarURL(cfg config.Gravatar, email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	q := url.Values{}
	q.Set("s", strconv.Itoa(cfg.Size))
	q.Set("r", cfg.Rating)
	q.Set("d", cfg.Default)
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?%s", hex.EncodeToString(sum[:]), q.Encode())
}

func loadTemplates(gravatar config.Gravatar) (*Templates, error) {
	funcs := template.FuncMap{
		"gravatar": func(email string) string { return gravatarURL(gravatar, email) },
		"ago": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return humanize.Time(t)
		},
		// Post bodies are authored by the admin as HTML.
		"safe": func(s string) template.HTML { return template.HTML(s) },
	}

	layoutContent, err := templateFS.ReadFile("templates/layout.html")
	if err != nil {
		return nil, err
	}

	makePage := func(pageName string) (*template.Template, error) {
		pageContent, err := templateFS.ReadFile("templates/" + pageName + ".html")
		if err != nil {
			return nil, err
		}
		t, err := template.New("layout").Funcs(funcs).Parse(string(layoutContent))
		if err != nil {
			return nil, err
		}
		if t, err = t.Parse(string(pageContent)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", pageName, err)
		}
		return t, nil
	}

	tmpl := &Templates{pages: make(map[string]*template.Template)}
	for _, name := range []string{pageIndex, pagePost, pageMakePost, pageLogin, pageRegister, pageAbout, pageContact, pageError} {
		page, err := makePage(name)
		if err != nil {
			return nil, err
		}
		tmpl.pages[name] = page
	}
	return tmpl, nil
}
