package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"gopkg.in/yaml.v3"
)

// maxPartBytes caps how much of a single docx part is decompressed.
const maxPartBytes = 64 << 20

// parseMarkdown strips YAML front matter, copying its scalar fields into
// meta, and returns the body plus the best available title.
func parseMarkdown(text string, meta map[string]string) (string, string) {
	title := ""
	front, body, ok := splitFrontMatter(text)
	if ok && strings.TrimSpace(front) != "" {
		fields := map[string]any{}
		if err := yaml.Unmarshal([]byte(front), &fields); err == nil {
			for k, v := range fields {
				switch val := v.(type) {
				case string:
					meta[k] = val
				case int, float64, bool:
					meta[k] = fmt.Sprint(val)
				}
			}
			title = meta["title"]
		}
	}
	if title == "" {
		for _, line := range strings.Split(body, "\n") {
			if strings.HasPrefix(line, "# ") {
				title = strings.TrimSpace(line[2:])
				break
			}
		}
	}
	return body, title
}

// splitFrontMatter separates a leading "---" delimited block from the body.
// The closing delimiter must be a line of its own; the block may be empty.
func splitFrontMatter(text string) (front, body string, ok bool) {
	if !strings.HasPrefix(text, "---\n") {
		return "", text, false
	}
	rest := text[4:]
	for off := 0; off <= len(rest); {
		line := rest[off:]
		nl := strings.IndexByte(line, '\n')
		if nl >= 0 {
			line = line[:nl]
		}
		if strings.TrimRight(line, " \t") == "---" {
			if nl < 0 {
				return rest[:off], "", true
			}
			return rest[:off], rest[off+nl+1:], true
		}
		if nl < 0 {
			break
		}
		off += nl + 1
	}
	return "", text, false
}

// inline elements do not break the surrounding text into separate lines.
var inline = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Cite: true, atom.Code: true,
	atom.Em: true, atom.I: true, atom.Kbd: true, atom.Mark: true, atom.Q: true,
	atom.S: true, atom.Small: true, atom.Span: true, atom.Strong: true, atom.Sub: true,
	atom.Sup: true, atom.Time: true, atom.U: true, atom.Var: true, atom.Label: true,
}

// skipped elements contribute no visible text.
var skippedElems = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Template: true, atom.Noscript: true,
}

// stripHTML returns the visible text of an HTML page, one block per line,
// and the contents of its <title>.
func stripHTML(text string) (string, string) {
	z := html.NewTokenizer(strings.NewReader(text))
	var body, title strings.Builder
	skip := 0
	inTitle := false
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return joinLines(body.String()), strings.TrimSpace(title.String())
		case html.TextToken:
			switch {
			case skip > 0:
			case inTitle:
				title.Write(z.Text())
			default:
				body.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case skippedElems[a]:
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			case a == atom.Title:
				inTitle = tt == html.StartTagToken
			case !inline[a]:
				body.WriteByte('\n')
			}
		}
	}
}

func joinLines(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// readPDF returns the plain text of every page and the Info dictionary title.
func readPDF(data []byte) (content, title string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", "", fmt.Errorf("read pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", "", fmt.Errorf("read pdf text: %w", err)
	}
	title = strings.TrimSpace(r.Trailer().Key("Info").Key("Title").Text())
	return string(b), title, nil
}

// readDOCX returns the paragraphs of word/document.xml, one per line, and
// the dc:title from docProps/core.xml when present.
func readDOCX(data []byte) (string, string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", "", fmt.Errorf("open docx: %w", err)
	}
	var doc, core *zip.File
	for _, f := range zr.File {
		switch f.Name {
		case "word/document.xml":
			doc = f
		case "docProps/core.xml":
			core = f
		}
	}
	if doc == nil {
		return "", "", errors.New("open docx: word/document.xml missing")
	}
	content, err := walkPart(doc, docxText)
	if err != nil {
		return "", "", err
	}
	title := ""
	if core != nil {
		if t, err := walkPart(core, coreTitle); err == nil {
			title = strings.TrimSpace(t)
		}
	}
	return content, title, nil
}

func walkPart(f *zip.File, walk func(*xml.Decoder) (string, error)) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	out, err := walk(xml.NewDecoder(io.LimitReader(rc, maxPartBytes)))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", f.Name, err)
	}
	return out, nil
}

// docxText collects w:t runs; paragraphs and breaks become newlines.
func docxText(d *xml.Decoder) (string, error) {
	var b strings.Builder
	inText := false
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
}

func coreTitle(d *xml.Decoder) (string, error) {
	for {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "title" {
			var s string
			if err := d.DecodeElement(&s, &se); err != nil {
				return "", err
			}
			return s, nil
		}
	}
}
