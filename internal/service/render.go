package service

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/mbrock/hostkeep/internal/config"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Role selects which daemon settings file is rendered.
type Role string

const (
	RoleWorker    Role = "worker"
	RoleScheduler Role = "scheduler"
)

// settings is the data handed to the templates.
type settings struct {
	config.Celery
	Name string
	Opts string
}

var funcs = template.FuncMap{
	"quote": shellQuote,
	"join":  strings.Join,
}

// shellQuote double-quotes s for a file sourced by /bin/sh.
func shellQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
	return `"` + r.Replace(s) + `"`
}

// Opts builds the command-line options passed to celery for role.
func Opts(role Role, c config.Celery) string {
	var opts []string
	switch role {
	case RoleWorker:
		if c.Concurrency > 0 {
			opts = append(opts, "--concurrency="+strconv.Itoa(c.Concurrency))
		}
		if c.Pool != "" {
			opts = append(opts, "-P", c.Pool)
		}
		if c.TimeLimit > 0 {
			opts = append(opts, "--time-limit="+strconv.Itoa(c.TimeLimit))
		}
	case RoleScheduler:
		if c.Schedule != "" {
			opts = append(opts, "--schedule="+c.Schedule)
		}
	}
	if extra := strings.TrimSpace(c.ExtraOpts); extra != "" {
		opts = append(opts, extra)
	}
	return strings.Join(opts, " ")
}

// RenderSettings renders the /etc/default file for a daemon. templatePath
// overrides the built-in template when non-empty.
func RenderSettings(role Role, name string, c config.Celery, templatePath string) ([]byte, error) {
	var (
		text string
		src  string
	)
	if templatePath != "" {
		b, err := os.ReadFile(templatePath)
		if err != nil {
			return nil, fmt.Errorf("reading template: %w", err)
		}
		text, src = string(b), templatePath
	} else {
		src = "templates/celeryd.tmpl"
		if role == RoleScheduler {
			src = "templates/celerybeat.tmpl"
		}
		b, err := templates.ReadFile(src)
		if err != nil {
			return nil, err
		}
		text = string(b)
	}

	tmpl, err := template.New(src).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", src, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, settings{Celery: c, Name: name, Opts: Opts(role, c)}); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", src, err)
	}
	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
