package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/treegest/internal/element"
	"golang.org/x/net/html"
)

// HTMLSource maps a DOM onto element kinds: controls become their widget
// types, text blocks become labels and block containers become panels.
type HTMLSource struct{}

// tagKind decides how a DOM element is converted.
type tagKind int

const (
	kindSkip        tagKind = iota
	kindContainer           // children converted one by one, loose text becomes labels
	kindText                // text absorbed into the node, controls below become children
	kindInline              // text absorbed into the enclosing text node
	kindTransparent         // no node of its own, children go to the parent
)

func (s *HTMLSource) Load(r io.Reader, filename string) (*element.Tree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := titleFromFilename(filename)
	if t := findTitle(doc); t != "" {
		title = t
	}

	root := element.NewNode("", element.TopLevel).SetName(title)
	if top := findElement(doc, "html"); top != nil {
		root = element.NewNode(attr(top, "id"), element.TopLevel).SetName(title)
	}

	if body := findElement(doc, "body"); body != nil {
		root.Append(convertHTML(body, element.Document))
	} else {
		convertChildren(doc, root.Append(element.NewNode("", element.Document)))
	}

	return finish(title, root), nil
}

func convertHTML(n *html.Node, t element.Type) *element.Node {
	el := element.NewNode(attr(n, "id"), t)
	applyAttributes(n, el)
	convertChildren(n, el)
	return el
}

func convertChildren(n *html.Node, parent *element.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if t := collapseSpace(c.Data); t != "" {
				parent.Append(element.NewNode("", element.Label).SetText(t))
			}
		case html.ElementNode:
			convertElement(c, parent)
		}
	}
}

func convertElement(n *html.Node, parent *element.Node) {
	t, kind := htmlKind(n)
	switch kind {
	case kindSkip:
		return
	case kindContainer:
		parent.Append(convertHTML(n, t))
	case kindTransparent:
		convertChildren(n, parent)
	case kindText, kindInline:
		el := parent.Append(element.NewNode(attr(n, "id"), t))
		applyAttributes(n, el)
		var buf strings.Builder
		absorb(n, &buf, el)
		text := collapseSpace(buf.String())
		if n.Data == "pre" || n.Data == "textarea" {
			text = strings.Trim(buf.String(), "\n")
		}
		// inputs keep their value attribute
		if text != "" {
			el.SetText(text)
		}
	}
}

// absorb collects the text under n into buf. Descendants that are controls or
// containers are converted as children of el instead.
func absorb(n *html.Node, buf *strings.Builder, el *element.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			buf.WriteString(c.Data)
		case html.ElementNode:
			if c.Data == "br" {
				buf.WriteByte('\n')
				continue
			}
			_, kind := htmlKind(c)
			switch kind {
			case kindSkip:
			case kindInline:
				absorb(c, buf, el)
			default:
				buf.WriteByte(' ')
				convertElement(c, el)
			}
		}
	}
}

func htmlKind(n *html.Node) (element.Type, tagKind) {
	switch n.Data {
	case "script", "style", "head", "noscript", "template", "meta", "link", "title", "br", "hr":
		return element.Unknown, kindSkip
	case "html":
		return element.TopLevel, kindContainer
	case "tbody", "thead", "tfoot", "picture":
		return element.Unknown, kindTransparent
	case "body", "iframe", "article", "main":
		return element.Document, kindContainer
	case "button":
		return element.Button, kindText
	case "a":
		if attr(n, "href") != "" {
			return element.Hyperlink, kindText
		}
		return element.Label, kindInline
	case "input":
		switch strings.ToLower(attr(n, "type")) {
		case "hidden":
			return element.Unknown, kindSkip
		case "button", "submit", "reset", "image":
			return element.Button, kindText
		case "checkbox":
			return element.CheckBox, kindText
		case "radio":
			return element.RadioButton, kindText
		case "range":
			return element.Slider, kindText
		}
		return element.TextEdit, kindText
	case "textarea":
		return element.TextEdit, kindText
	case "select":
		return element.ComboBox, kindContainer
	case "option":
		return element.ListViewItem, kindText
	case "ul", "ol", "dl":
		return element.ListView, kindContainer
	case "li":
		return element.ListViewItem, kindText
	case "table":
		return element.Table, kindContainer
	case "tr":
		return element.TableRow, kindContainer
	case "td", "th", "caption":
		return element.Label, kindText
	case "img", "svg", "canvas", "video":
		return element.Image, kindText
	case "progress", "meter":
		return element.ProgressBar, kindText
	case "nav", "menu":
		return element.Menu, kindContainer
	case "dialog":
		return element.TopLevel, kindContainer
	case "h1", "h2", "h3", "h4", "h5", "h6", "p", "label", "pre", "blockquote",
		"dt", "dd", "figcaption", "legend", "summary":
		return element.Label, kindText
	case "span", "b", "i", "em", "strong", "small", "code", "abbr", "mark", "u", "s",
		"sub", "sup", "kbd", "samp", "var", "q", "cite", "time", "font":
		return element.Label, kindInline
	}
	return element.Panel, kindContainer
}

// applyAttributes fills name, states and control values from attributes.
func applyAttributes(n *html.Node, el *element.Node) {
	for _, key := range []string{"aria-label", "title", "alt", "placeholder"} {
		if v := strings.TrimSpace(attr(n, key)); v != "" {
			el.SetName(v)
			break
		}
	}

	var states element.States
	if hasAttr(n, "disabled") || attr(n, "aria-disabled") == "true" {
		states |= element.Disabled
	}
	if hasAttr(n, "readonly") || attr(n, "aria-readonly") == "true" {
		states |= element.ReadOnly
	}
	if hasAttr(n, "autofocus") {
		states |= element.Focused
	}
	if hasAttr(n, "checked") || hasAttr(n, "selected") || attr(n, "aria-selected") == "true" ||
		attr(n, "aria-checked") == "true" {
		states |= element.Selected
	}
	if hasAttr(n, "hidden") || attr(n, "aria-hidden") == "true" {
		states |= element.Offscreen
	}

	if n.Data == "input" {
		switch strings.ToLower(attr(n, "type")) {
		case "password":
			states |= element.Password
		case "checkbox", "radio":
		default:
			el.SetText(attr(n, "value"))
		}
	}
	el.AddStates(states)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(n *html.Node) string {
	if t := findElement(n, "title"); t != nil {
		return textContent(t)
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
