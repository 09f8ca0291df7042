// Package stream applies selector-driven edits to rendered HTML pages.
package stream

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Stream is a parsed HTML page that filters modify in place before it is
// written to the client.
type Stream struct {
	doc *goquery.Document
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Stream, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "stream: parse html")
	}
	return &Stream{doc: doc}, nil
}

// ParseString is Parse for an in-memory page.
func ParseString(html string) (*Stream, error) {
	return Parse(strings.NewReader(html))
}

// Render writes the document back out as HTML.
func (s *Stream) Render(w io.Writer) error {
	html, err := s.doc.Html()
	if err != nil {
		return eris.Wrap(err, "stream: render html")
	}
	_, err = io.WriteString(w, html)
	return eris.Wrap(err, "stream: write html")
}

// String renders the document, returning "" on error.
func (s *Stream) String() string {
	var b strings.Builder
	if err := s.Render(&b); err != nil {
		return ""
	}
	return b.String()
}

// Document exposes the underlying goquery document for read-only checks.
func (s *Stream) Document() *goquery.Document {
	return s.doc
}

// Select returns a transformer over every element matching the CSS selector.
// A selector matching nothing yields a transformer whose edits are no-ops.
func (s *Stream) Select(selector string) *Transformer {
	return &Transformer{sel: s.doc.Find(selector), selector: selector}
}

// Transformer inserts markup relative to a selection.
type Transformer struct {
	sel      *goquery.Selection
	selector string
}

// Len returns the number of matched elements.
func (t *Transformer) Len() int {
	return t.sel.Length()
}

// Append inserts html as the last child of each match.
func (t *Transformer) Append(html string) *Transformer {
	t.sel.AppendHtml(html)
	return t
}

// Prepend inserts html as the first child of each match.
func (t *Transformer) Prepend(html string) *Transformer {
	t.sel.PrependHtml(html)
	return t
}

// After inserts html as the next sibling of each match.
func (t *Transformer) After(html string) *Transformer {
	t.sel.AfterHtml(html)
	return t
}

// Before inserts html as the previous sibling of each match.
func (t *Transformer) Before(html string) *Transformer {
	t.sel.BeforeHtml(html)
	return t
}
