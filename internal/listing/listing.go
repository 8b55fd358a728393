// Package listing renders directory listings as HTML.
package listing

import (
	"bytes"
	"net/url"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Renderer turns the entry names of a directory into a response body.
// Implementations must not touch the network or the filesystem.
type Renderer interface {
	Render(names []string, dir string) []byte
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(names []string, dir string) []byte

// Render calls f(names, dir).
func (f RendererFunc) Render(names []string, dir string) []byte {
	return f(names, dir)
}

// HTML renders an HTML 4.01 page with one link per entry, in the order given.
// Names become relative hrefs, path-escaped, so directory entries ending in
// "/" link to their own listings.
var HTML Renderer = RendererFunc(renderHTML)

func renderHTML(names []string, dir string) []byte {
	title := "Directory listing for " + dir

	ul := element(atom.Ul)
	for _, name := range names {
		href := (&url.URL{Path: name}).String()
		a := element(atom.A, html.Attribute{Key: "href", Val: href})
		a.AppendChild(text(name))
		li := element(atom.Li)
		li.AppendChild(a)
		ul.AppendChild(li)
	}

	head := element(atom.Head)
	head.AppendChild(element(atom.Meta,
		html.Attribute{Key: "http-equiv", Val: "Content-Type"},
		html.Attribute{Key: "content", Val: "text/html; charset=utf-8"}))
	titleEl := element(atom.Title)
	titleEl.AppendChild(text(title))
	head.AppendChild(titleEl)

	body := element(atom.Body)
	h1 := element(atom.H1)
	h1.AppendChild(text(title))
	body.AppendChild(h1)
	body.AppendChild(element(atom.Hr))
	body.AppendChild(ul)
	body.AppendChild(element(atom.Hr))

	root := element(atom.Html)
	root.AppendChild(head)
	root.AppendChild(body)

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{
		Type: html.DoctypeNode,
		Data: "HTML",
		Attr: []html.Attribute{
			{Key: "public", Val: "-//W3C//DTD HTML 4.01//EN"},
			{Key: "system", Val: "http://www.w3.org/TR/html4/strict.dtd"},
		},
	})
	doc.AppendChild(root)

	var buf bytes.Buffer
	// Writes to a bytes.Buffer do not fail.
	_ = html.Render(&buf, doc)
	buf.WriteByte('\n')
	return buf.Bytes()
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}
