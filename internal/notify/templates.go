package notify

import (
	"embed"
	"html/template"
	texttpl "text/template"
)

//go:embed templates/*
var templatesFS embed.FS

type Templates struct {
	WelcomeHTML *template.Template
	WelcomeTXT  *texttpl.Template
}

type WelcomeVars struct {
	Email        string
	Tenant       string
	TempPassword string
	LoginURL     string
}

func LoadTemplates() (*Templates, error) {
	h, err := template.ParseFS(templatesFS, "templates/welcome.html")
	if err != nil {
		return nil, err
	}
	t, err := texttpl.ParseFS(templatesFS, "templates/welcome.txt")
	if err != nil {
		return nil, err
	}
	return &Templates{WelcomeHTML: h, WelcomeTXT: t}, nil
}
