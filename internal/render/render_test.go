package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0madic/go-appforge/internal/store"
	"github.com/n0madic/go-appforge/internal/types"
)

func testRecord(b types.CodeBundle) *store.Record {
	return &store.Record{
		ID:          "01HZY3J8K9M4N5P6Q7R8S9T0VW",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Instruction: "a todo app",
		Model:       "deepseek-chat",
		Stage:       "fences",
		Bundle:      b,
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(testRecord(types.NewCodeBundle("export default function App() {}", "", "CREATE TABLE t();\n")))

	assert.Contains(t, md, "# Bundle 01HZY3J8K9M4N5P6Q7R8S9T0VW")
	assert.Contains(t, md, "2026-01-02T03:04:05Z")
	assert.Contains(t, md, "> a todo app\n")
	assert.Contains(t, md, "## Frontend (`frontend/App.tsx`)\n\n```tsx\nexport default function App() {}\n```\n")
	assert.Contains(t, md, "## Backend (`backend/index.ts`)\n\n_Not generated._")
	assert.Contains(t, md, "```sql\nCREATE TABLE t();\n```\n")
}

func TestFenceFor(t *testing.T) {
	assert.Equal(t, "```", fenceFor("no ticks"))
	assert.Equal(t, "```", fenceFor("a `b` c"))
	assert.Equal(t, "````", fenceFor("```js\nx\n```"))
	assert.Equal(t, "``````", fenceFor("`````"))
}

func TestMarkdownNestedFences(t *testing.T) {
	md := Markdown(testRecord(types.NewCodeBundle("const s = `\n```\n`;", "", "")))
	assert.Contains(t, md, "````tsx\n")
}

func TestHTMLEscapesCode(t *testing.T) {
	rec := testRecord(types.NewCodeBundle(`<script>alert("x")</script>`, "", ""))
	rec.Instruction = "<img src=x onerror=alert(1)>"
	page, err := HTML(rec)
	require.NoError(t, err)

	out := string(page)
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<title>Bundle 01HZY3J8K9M4N5P6Q7R8S9T0VW</title>")
	assert.Contains(t, out, `<code class="language-tsx">`)
	assert.Contains(t, out, "&lt;script&gt;")
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "<img")
}
