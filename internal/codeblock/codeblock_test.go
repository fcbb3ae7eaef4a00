package codeblock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riicode/rcbuilder/internal/model"
)

func TestSplit_TextAndCodeInOrder(t *testing.T) {
	content := "Here:\n```html [index.html]\n<h1>Hi</h1>\n```\nDone."

	parts := Split(content)

	require.Len(t, parts, 3)
	assert.Equal(t, Part{Kind: KindText, Content: "Here:\n"}, parts[0])
	assert.Equal(t, Part{Kind: KindCode, Content: "<h1>Hi</h1>", Language: "html", FileName: "index.html"}, parts[1])
	assert.Equal(t, Part{Kind: KindText, Content: "Done."}, parts[2])
}

func TestSplit_FileNameWithoutLanguage_DetectsFromExtension(t *testing.T) {
	parts := Split("```[main.go]\npackage main\n```")

	require.Len(t, parts, 1)
	assert.Equal(t, KindCode, parts[0].Kind)
	assert.Equal(t, "main.go", parts[0].FileName)
	assert.Equal(t, "go", parts[0].Language)
	assert.Equal(t, "package main", parts[0].Content)
}

func TestSplit_NoInfoString(t *testing.T) {
	parts := Split("intro\n\n```\nsome code\nmore\n```\n")

	require.Len(t, parts, 2)
	assert.Equal(t, KindText, parts[0].Kind)
	assert.Equal(t, KindCode, parts[1].Kind)
	assert.Equal(t, "some code\nmore", parts[1].Content)
	assert.NotEmpty(t, parts[1].Language)
	assert.Empty(t, parts[1].FileName)
}

func TestSplit_MultipleBlocks(t *testing.T) {
	content := "```css [style.css]\nbody {}\n```\n```js [app.js]\nrun()\n```\nbye"

	parts := Split(content)

	require.Len(t, parts, 3)
	assert.Equal(t, "style.css", parts[0].FileName)
	assert.Equal(t, "body {}", parts[0].Content)
	assert.Equal(t, "app.js", parts[1].FileName)
	assert.Equal(t, "run()", parts[1].Content)
	assert.Equal(t, Part{Kind: KindText, Content: "bye"}, parts[2])
}

func TestSplit_TildeFence(t *testing.T) {
	parts := Split("~~~python\nprint(1)\n~~~\nafter")

	require.Len(t, parts, 2)
	assert.Equal(t, "python", parts[0].Language)
	assert.Equal(t, "print(1)", parts[0].Content)
	assert.Equal(t, "after", parts[1].Content)
}

func TestSplit_UnclosedFenceRunsToEnd(t *testing.T) {
	parts := Split("text\n```python\nprint(1)\nprint(2)\n")

	require.Len(t, parts, 2)
	assert.Equal(t, "text\n", parts[0].Content)
	assert.Equal(t, "print(1)\nprint(2)", parts[1].Content)
}

func TestSplit_PlainText(t *testing.T) {
	parts := Split("just words")

	require.Len(t, parts, 1)
	assert.Equal(t, Part{Kind: KindText, Content: "just words"}, parts[0])
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, Split(""))
	assert.Empty(t, Split("  \n\n"))
}

func TestFiles_FileSectionsAndNamedFences(t *testing.T) {
	content := "Project:\n" +
		"=== FILENAME: index.html ===\n<html></html>\n=== END FILE ===\n" +
		"=== FILENAME: js/app.js ===\nconsole.log(1)\nconsole.log(2)\n=== END FILE ===\n" +
		"```css [style.css]\nbody {}\n```\n" +
		"```python\nprint(1)\n```\n"

	files := Files(content)

	assert.Equal(t, []model.SessionFile{
		{FileName: "index.html", Content: "<html></html>"},
		{FileName: "js/app.js", Content: "console.log(1)\nconsole.log(2)"},
		{FileName: "style.css", Content: "body {}"},
	}, files)
}

func TestFiles_DuplicateNameKeepsFirst(t *testing.T) {
	content := "=== FILENAME: a.txt ===\nfirst\n=== END FILE ===\n" +
		"=== FILENAME: a.txt ===\nsecond\n=== END FILE ===\n"

	files := Files(content)

	require.Len(t, files, 1)
	assert.Equal(t, "first", files[0].Content)
}

func TestFiles_EquivalentNamesCollapse(t *testing.T) {
	content := "=== FILENAME: index.html ===\nfirst\n=== END FILE ===\n" +
		"=== FILENAME: ./index.html ===\nsecond\n=== END FILE ===\n" +
		"```js [js//app.js]\nrun()\n```\n" +
		"```js [./js/app.js]\nagain()\n```\n" +
		"```txt [./]\nignored\n```\n"

	files := Files(content)

	assert.Equal(t, []model.SessionFile{
		{FileName: "index.html", Content: "first"},
		{FileName: "js/app.js", Content: "run()"},
	}, files)
}

func TestFiles_NoFiles(t *testing.T) {
	files := Files("plain answer with ```inline``` code")

	assert.NotNil(t, files)
	assert.Empty(t, files)
}

func TestParseInfo(t *testing.T) {
	tests := []struct {
		info     string
		lang     string
		fileName string
	}{
		{"html", "html", ""},
		{"HTML [index.html]", "html", "index.html"},
		{"[main.go]", "", "main.go"},
		{"js  [src/app.js] extra", "js", "src/app.js"},
		{"", "", ""},
		{"go []", "go", ""},
	}
	for _, tt := range tests {
		t.Run(tt.info, func(t *testing.T) {
			lang, fileName := parseInfo(tt.info)
			assert.Equal(t, tt.lang, lang)
			assert.Equal(t, tt.fileName, fileName)
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "html", DetectLanguage("index.html", ""))
	assert.Equal(t, "css", DetectLanguage("style.css", "body {}"))
	assert.Equal(t, "text", DetectLanguage("", ""))
}
