// Package convert holds the local conversion engines: office documents to
// PDF, PDF pages to JPEG, and image resizing for vision models.
package convert

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
)

// ErrInvalidDocx is returned for input that is not a readable .docx archive.
var ErrInvalidDocx = errors.New("invalid docx")

// Sanitize replaces every non-ASCII character with '.', which keeps the
// LaTeX engine behind pandoc from rejecting the document.
func Sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		if r < 128 {
			return r
		}
		return '.'
	}, text)
}

// DocxParagraphs returns the plain text of every paragraph in
// word/document.xml, in document order. Empty paragraphs are kept.
func DocxParagraphs(data []byte) ([]string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocx, err)
	}
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocx, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocx, err)
		}
		return parseDocumentXML(content)
	}
	return nil, fmt.Errorf("%w: word/document.xml not found", ErrInvalidDocx)
}

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []textRun `xml:"r"`
}

type textRun struct {
	Text []textElement `xml:"t"`
	Tabs []struct{}    `xml:"tab"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func parseDocumentXML(content []byte) ([]string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocx, err)
	}
	paras := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		var b strings.Builder
		for _, r := range p.Runs {
			for range r.Tabs {
				b.WriteByte('\t')
			}
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
		paras = append(paras, b.String())
	}
	return paras, nil
}

// SanitizedHTML renders paragraphs as a minimal HTML document, sanitizing
// each one first. Pandoc reads it back with -f html.
func SanitizedHTML(paragraphs []string) []byte {
	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"></head><body>\n")
	for _, p := range paragraphs {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(Sanitize(p)))
		b.WriteString("</p>\n")
	}
	b.WriteString("</body></html>\n")
	return b.Bytes()
}
