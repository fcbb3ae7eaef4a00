// Package codeblock はAIの応答テキストからコードブロックとファイルを抽出する。
//
// フェンス付きコードブロックはgoldmarkで解析し、情報文字列 "lang [filename]" から
// 言語とファイル名を取り出す。"=== FILENAME: name ===" 形式の複数ファイル出力にも対応する。
package codeblock

import (
	"bytes"
	"path"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/riicode/rcbuilder/internal/model"
)

// PartKind はPartの種類を表す。
type PartKind string

const (
	KindText PartKind = "text"
	KindCode PartKind = "code"
)

// Part は応答テキストを分割した1区間。
type Part struct {
	Kind     PartKind `json:"type"`
	Content  string   `json:"content"`
	Language string   `json:"language,omitempty"`
	FileName string   `json:"fileName,omitempty"`
}

var md = goldmark.New()

// fileSectionPattern は "=== FILENAME: name ===" から "=== END FILE ===" までの区間に一致する。
var fileSectionPattern = regexp.MustCompile(`(?ms)^[ \t]*===[ \t]*FILENAME:[ \t]*(.+?)[ \t]*===[ \t]*\r?\n(.*?)^[ \t]*===[ \t]*END FILE[ \t]*===[ \t]*$`)

// fencedBlock はソース上のフェンス付きコードブロックの位置と内容。
type fencedBlock struct {
	start, end int // 開始フェンス行の先頭から終了フェンス行の末尾まで
	part       Part
}

// Split はcontentをテキストとコードブロックの並びに分割する。
// ブロック間のテキストはそのまま保持し、空白のみの区間は捨てる。
func Split(content string) []Part {
	source := []byte(content)
	blocks := fencedBlocks(source)

	parts := make([]Part, 0, len(blocks)*2+1)
	pos := 0
	for _, b := range blocks {
		if b.start < pos {
			continue
		}
		parts = appendText(parts, source[pos:b.start])
		parts = append(parts, b.part)
		pos = b.end
	}
	parts = appendText(parts, source[pos:])
	return parts
}

// Files はcontentからファイル名付きのコードを取り出す。
// FILENAME区間を先に、ファイル名付きのフェンスブロックを後に並べる。
// ファイル名は "./" などを取り除いた形に正規化し、正規化後に同じ名前が
// 複数回現れた場合は最初のものを採用する。
func Files(content string) []model.SessionFile {
	files := []model.SessionFile{}
	seen := make(map[string]bool)
	add := func(name, body string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		name = path.Clean(name)
		if name == "." || seen[name] {
			return
		}
		seen[name] = true
		files = append(files, model.SessionFile{FileName: name, Content: body})
	}

	for _, m := range fileSectionPattern.FindAllStringSubmatch(content, -1) {
		add(m[1], strings.TrimRight(m[2], "\r\n"))
	}
	for _, b := range fencedBlocks([]byte(content)) {
		if b.part.FileName != "" {
			add(b.part.FileName, b.part.Content)
		}
	}
	return files
}

// DetectLanguage はファイル名、次にコード本文から言語名を推定する。
// 推定できない場合は "text" を返す。
func DetectLanguage(fileName, code string) string {
	var lexer chroma.Lexer
	if fileName != "" {
		lexer = lexers.Match(fileName)
	}
	if lexer == nil && strings.TrimSpace(code) != "" {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		return "text"
	}
	cfg := lexer.Config()
	if len(cfg.Aliases) > 0 {
		return cfg.Aliases[0]
	}
	return strings.ToLower(cfg.Name)
}

func appendText(parts []Part, b []byte) []Part {
	if len(bytes.TrimSpace(b)) == 0 {
		return parts
	}
	return append(parts, Part{Kind: KindText, Content: string(b)})
}

// fencedBlocks はsource中のフェンス付きコードブロックを出現順に返す。
// 情報文字列も本文も持たないブロックは位置を特定できないため対象外とする。
func fencedBlocks(source []byte) []fencedBlock {
	doc := md.Parser().Parse(text.NewReader(source))

	var blocks []fencedBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if b, ok := toBlock(fcb, source); ok {
			blocks = append(blocks, b)
		}
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

func toBlock(fcb *ast.FencedCodeBlock, source []byte) (fencedBlock, bool) {
	var info string
	lines := fcb.Lines()

	var start, bodyEnd int
	switch {
	case fcb.Info != nil:
		seg := fcb.Info.Segment
		info = string(seg.Value(source))
		start = lineStart(source, seg.Start)
		bodyEnd = lineEnd(source, seg.Start)
	case lines.Len() > 0:
		first := lineStart(source, lines.At(0).Start)
		if first == 0 {
			return fencedBlock{}, false
		}
		start = lineStart(source, first-1)
		bodyEnd = first
	default:
		return fencedBlock{}, false
	}

	var code bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
		bodyEnd = seg.Stop
	}

	lang, fileName := parseInfo(info)
	body := strings.TrimRight(code.String(), "\r\n")
	if lang == "" {
		lang = DetectLanguage(fileName, body)
	}

	return fencedBlock{
		start: start,
		end:   closingFenceEnd(source, bodyEnd),
		part: Part{
			Kind:     KindCode,
			Content:  body,
			Language: lang,
			FileName: fileName,
		},
	}, true
}

// parseInfo は情報文字列 "lang [filename]" を分解する。言語は省略できる。
func parseInfo(info string) (lang, fileName string) {
	info = strings.TrimSpace(info)
	if !strings.HasPrefix(info, "[") {
		if i := strings.IndexAny(info, " \t"); i >= 0 {
			lang, info = info[:i], strings.TrimSpace(info[i:])
		} else {
			lang, info = info, ""
		}
	}
	if strings.HasPrefix(info, "[") {
		if end := strings.Index(info, "]"); end > 1 {
			fileName = strings.TrimSpace(info[1:end])
		}
	}
	return strings.ToLower(lang), fileName
}

// closingFenceEnd はposから始まる行が終了フェンスならその行末を、そうでなければposを返す。
// posは本文最終行の次の行頭を指す。
func closingFenceEnd(source []byte, pos int) int {
	if pos >= len(source) {
		return len(source)
	}
	end := lineEnd(source, pos)
	line := strings.TrimSpace(string(source[pos:end]))
	if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~") {
		return end
	}
	return pos
}

func lineStart(source []byte, pos int) int {
	if i := bytes.LastIndexByte(source[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

func lineEnd(source []byte, pos int) int {
	if i := bytes.IndexByte(source[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(source)
}
