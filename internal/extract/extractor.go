// Package extract turns uploaded files into normalized text documents.
// Unreadable or unsupported files are skipped, never fatal for the batch.
package extract

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"ragchat/internal/domain"
)

// Skipped records a file that contributed no document and why.
type Skipped struct {
	Name   string
	Reason string
}

func (s Skipped) String() string { return fmt.Sprintf("%s (%s)", s.Name, s.Reason) }

var supported = map[string]string{
	".txt":      "text",
	".text":     "text",
	".log":      "text",
	".csv":      "text",
	".tsv":      "text",
	".json":     "text",
	".yaml":     "text",
	".yml":      "text",
	".xml":      "text",
	".rst":      "text",
	".md":       "markdown",
	".markdown": "markdown",
	".html":     "html",
	".htm":      "html",
	".pdf":      "pdf",
	".docx":     "docx",
}

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// Extractor converts raw uploads to documents.
type Extractor struct {
	logger   *slog.Logger
	maxBytes int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used to report skipped files.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithMaxBytes rejects files larger than n bytes. Zero means no limit.
func WithMaxBytes(n int) Option {
	return func(e *Extractor) { e.maxBytes = n }
}

func New(opts ...Option) *Extractor {
	e := &Extractor{logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract returns one document per usable file, in input order, and the list
// of files that were skipped. An empty result means nothing could be read.
func (e *Extractor) Extract(files []domain.RawFile) ([]domain.Document, []Skipped) {
	var docs []domain.Document
	var skipped []Skipped
	for _, f := range files {
		doc, reason := e.extractOne(f)
		if reason != "" {
			e.logger.Warn("skipping file", "file", f.Name, "reason", reason)
			skipped = append(skipped, Skipped{Name: f.Name, Reason: reason})
			continue
		}
		docs = append(docs, doc)
	}
	return docs, skipped
}

func (e *Extractor) extractOne(f domain.RawFile) (domain.Document, string) {
	kind, ok := supported[strings.ToLower(filepath.Ext(f.Name))]
	if !ok {
		return domain.Document{}, "unsupported file type"
	}
	if e.maxBytes > 0 && len(f.Data) > e.maxBytes {
		return domain.Document{}, "file too large"
	}
	doc := domain.Document{Name: filepath.Base(f.Name), Metadata: map[string]string{"type": kind}}
	var err error
	switch kind {
	case "pdf":
		doc.Content, doc.Title, err = readPDF(f.Data)
	case "docx":
		doc.Content, doc.Title, err = readDOCX(f.Data)
	default:
		if bytes.IndexByte(f.Data, 0) >= 0 || !utf8.Valid(f.Data) {
			return domain.Document{}, "not valid UTF-8 text"
		}
		text := strings.ReplaceAll(string(f.Data), "\r\n", "\n")
		switch kind {
		case "markdown":
			doc.Content, doc.Title = parseMarkdown(text, doc.Metadata)
		case "html":
			doc.Content, doc.Title = stripHTML(text)
		default:
			doc.Content = text
		}
	}
	if err != nil {
		e.logger.Debug("decode failed", "file", f.Name, "error", err)
		return domain.Document{}, "unreadable " + kind
	}
	doc.Content = strings.ReplaceAll(doc.Content, "\r\n", "\n")
	doc.Content = strings.TrimSpace(blankLinesRe.ReplaceAllString(doc.Content, "\n\n"))
	if doc.Content == "" {
		return domain.Document{}, "no text content"
	}
	doc.ID = hashString(doc.Name + "\x00" + doc.Content)
	return doc, ""
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
