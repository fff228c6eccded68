// Package render turns a stored bundle into a Markdown document and an HTML
// page for browsing.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/n0madic/go-appforge/internal/github"
	"github.com/n0madic/go-appforge/internal/store"
	"github.com/n0madic/go-appforge/internal/types"
)

type section struct {
	field string
	title string
	path  string
	lang  string
}

var sections = []section{
	{types.FieldFrontend, "Frontend", github.PathFrontend, "tsx"},
	{types.FieldBackend, "Backend", github.PathBackend, "ts"},
	{types.FieldDatabase, "Database", github.PathDatabase, "sql"},
}

// Markdown renders rec as a Markdown document with one fenced block per part.
// Empty parts are listed as not generated.
func Markdown(rec *store.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Bundle %s\n\n", rec.ID)
	fmt.Fprintf(&b, "Created %s with `%s` (recovered at the %s stage).\n\n",
		rec.CreatedAt.UTC().Format(time.RFC3339), rec.Model, rec.Stage)
	if rec.Instruction != "" {
		for _, line := range strings.Split(rec.Instruction, "\n") {
			b.WriteString("> " + line + "\n")
		}
		b.WriteString("\n")
	}

	for _, s := range sections {
		content, _ := rec.Bundle.Field(s.field)
		fmt.Fprintf(&b, "## %s (`%s`)\n\n", s.title, s.path)
		if strings.TrimSpace(content) == "" {
			b.WriteString("_Not generated._\n\n")
			continue
		}
		fence := fenceFor(content)
		b.WriteString(fence + s.lang + "\n")
		b.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString(fence + "\n\n")
	}
	return b.String()
}

// fenceFor returns a backtick fence longer than any backtick run in content.
func fenceFor(content string) string {
	longest, run := 0, 0
	for i := 0; i < len(content); i++ {
		if content[i] == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

var pageTemplate = template.Must(template.New("bundle").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Bundle {{.ID}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 960px; margin: 2rem auto; padding: 0 1rem; }
pre { background: #f6f8fa; padding: 1rem; overflow-x: auto; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders rec as a standalone page. Raw HTML in the instruction is
// dropped by goldmark; code is escaped inside <pre> blocks.
func HTML(rec *store.Record) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(rec)), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		ID   string
		Body template.HTML
	}{rec.ID, template.HTML(body.String())})
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return page.Bytes(), nil
}
