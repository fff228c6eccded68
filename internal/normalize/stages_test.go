package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLadderOrder(t *testing.T) {
	var names, attempts []string
	for _, st := range ladder {
		names = append(names, st.name)
		if st.attempt {
			attempts = append(attempts, st.name)
		}
	}
	assert.Equal(t, []string{StageTrim, StageFences, StageControl, StageBoundary, StageEscape}, names)
	assert.Equal(t, []string{StageTrim, StageControl, StageBoundary, StageEscape}, attempts)
}

func TestTrimText(t *testing.T) {
	assert.Equal(t, "{}", trimText("  \n{}\t "))
	assert.Equal(t, "{}", trimText("\uFEFF{}"))
	assert.Equal(t, "{}", trimText(" \uFEFF {} "))
	assert.Equal(t, "", trimText(" \uFEFF "))
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{}\n```", "{}"},
		{"```JSON\n{}\n```", "{}"},
		{"```\n{}\n```", "{}"},
		{"text ```json {} ``` more", "text  {}  more"},
		{"{}", "{}"},
		{"```typescript\nconst a = 1\n```", "const a = 1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripFences(tt.in), "input %q", tt.in)
	}
}

func TestStripControl(t *testing.T) {
	assert.Equal(t, "ab", stripControl("a\x00\x1fb"))
	assert.Equal(t, "a\n\r\tb", stripControl("a\n\r\tb"))
	assert.Equal(t, "ab", stripControl("a\x7f\u0080\u009fb"))
	assert.Equal(t, "é€", stripControl("é€"))
}

func TestExtractBoundary(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Here: {\"a\":1} bye", `{"a":1}`},
		{"{\"a\":{\"b\":2}} trailing } brace", "{\"a\":{\"b\":2}} trailing }"},
		{"no braces", "no braces"},
		{"} reversed {", "} reversed {"},
		{"{}", "{}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractBoundary(tt.in), "input %q", tt.in)
	}
}

func TestRepairEscaping(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"raw newline", "{\"a\":\"x\ny\"}", `{"a":"x\ny"}`},
		{"raw cr and tab", "{\"a\":\"x\r\ty\"}", `{"a":"x\r\ty"}`},
		{"trailing comma object", `{"a":1,}`, `{"a":1}`},
		{"trailing comma array", `{"a":[1,2, ]}`, `{"a":[1,2 ]}`},
		{"trailing comma before newline", "{\"a\":1,\n}", "{\"a\":1\n}"},
		{"single quoted key and value", `{'a':'b'}`, `{"a":"b"}`},
		{"double quote in single quoted", `{'a':'say "hi"'}`, `{"a":"say \"hi\""}`},
		{"apostrophe in single quoted", `{'a':'don't'}`, `{"a":"don't"}`},
		{"escaped apostrophe in single quoted", `{'a':'don\'t'}`, `{"a":"don't"}`},
		{"bare key", `{a: 1, b_2: true}`, `{"a": 1, "b_2": true}`},
		{"bare value after comma untouched", `{"a":[1, true, null]}`, `{"a":[1, true, null]}`},
		{"interior quotes", `{"a":"<p class="x">"}`, `{"a":"<p class=\"x\">"}`},
		{"invalid escape", `{"a":"\d+"}`, `{"a":"\\d+"}`},
		{"valid escapes kept", `{"a":"\"q\" \\ \/ \b\f\n\r\t é"}`, `{"a":"\"q\" \\ \/ \b\f\n\r\t é"}`},
		{"short unicode escape", `{"a":"\u12"}`, `{"a":"\\u12"}`},
		{"trailing backslash", `{"a":"x\`, `{"a":"x\\`},
		{"apostrophe in double quoted", `{"a":"it's"}`, `{"a":"it's"}`},
		{"no json", "plain words", "plain words"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repairEscaping(tt.in))
		})
	}
}

func TestRepairEscapingLeavesValidJSONUnchanged(t *testing.T) {
	inputs := []string{
		wellFormed,
		`{"frontend":"<div class=\"a\">\n</div>","backend":"x, y: z","database":""}`,
		`{"nested":{"list":[1,2,{"k":"v"}],"ok":true,"none":null},"s":"a\\"}`,
		"{\n  \"frontend\": \"\",\n  \"backend\": \"\",\n  \"database\": \"\"\n}",
	}
	for _, in := range inputs {
		assert.True(t, json.Valid([]byte(in)), "fixture must be valid: %q", in)
		assert.Equal(t, in, repairEscaping(in))
	}
}
