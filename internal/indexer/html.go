package indexer

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/location"
	"github.com/pkms-dev/pkms/internal/screener"
)

// HTMLIndexer indexes saved web pages. Pages saved with the SingleFile
// browser extension carry their source URL and save date in a leading
// comment; those become origin_uri and the file creation time.
type HTMLIndexer struct{}

// Index extracts visible text, the <title>, <meta> pairs and headings.
func (HTMLIndexer) Index(ctx context.Context, loc location.FileLocation, stamp *screener.FileStamp) (*Document, error) {
	body, err := readFile(ctx, loc)
	if err != nil {
		return nil, err
	}
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeIndexFailed, "cannot parse HTML "+loc.URI(), err)
	}
	page := extractPage(root)

	doc := NewDocument(loc, stamp)
	doc.Text = page.text
	if page.title != "" {
		doc.Title = page.title
	}

	meta := map[string]any{}
	if page.title != "" {
		meta["title"] = page.title
	}
	if len(page.meta) > 0 {
		meta["meta"] = page.meta
	}
	if len(page.headers) > 0 {
		meta["headers"] = page.headers
	}
	doc.Extra["html"] = meta

	if sf := page.singleFile; sf != nil {
		doc.OriginURI = sf.URL
		if !sf.Saved.IsZero() {
			doc.FileCreated = sf.Saved
		}
		doc.Extra["single_file"] = sf.asMap()
	}
	return doc, nil
}

type page struct {
	title      string
	meta       map[string]string
	headers    [][2]string
	text       string
	singleFile *SingleFileInfo
}

// skipped elements contribute no visible text.
var skipped = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true,
	atom.Noscript: true, atom.Template: true, atom.Svg: true,
}

// blocks end a line of visible text.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Blockquote: true, atom.Pre: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
	atom.Hr: true, atom.Dt: true, atom.Dd: true, atom.Figcaption: true,
}

var headings = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

var spaceRun = regexp.MustCompile(`[ \t\r\f\v\x{00a0}]+`)

type frame struct {
	n    *html.Node
	exit bool
}

// extractPage walks the tree with an explicit stack so deeply nested
// pages cannot exhaust the goroutine stack.
func extractPage(root *html.Node) page {
	p := page{meta: map[string]string{}}
	var text strings.Builder

	stack := []frame{{n: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := f.n

		if f.exit {
			if blocks[n.DataAtom] {
				text.WriteByte('\n')
			}
			continue
		}

		switch n.Type {
		case html.CommentNode:
			if p.singleFile == nil {
				p.singleFile = ParseSingleFileComment(n.Data)
			}
		case html.TextNode:
			text.WriteString(n.Data)
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Title:
				if p.title == "" {
					p.title = collapse(nodeText(n))
				}
			case atom.Meta:
				collectMeta(n, p.meta)
			}
			if headings[n.DataAtom] {
				p.headers = append(p.headers, [2]string{n.Data, collapse(nodeText(n))})
			}
			if skipped[n.DataAtom] {
				// Comments and <title> in <head> still matter.
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.CommentNode || c.Type == html.ElementNode {
						scanHead(c, &p)
					}
				}
				continue
			}
			if n.DataAtom == atom.Br {
				text.WriteByte('\n')
			}
		}

		stack = append(stack, frame{n: n, exit: true})
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, frame{n: c})
		}
	}

	p.text = normalizeText(text.String())
	return p
}

// scanHead collects metadata from a skipped subtree without emitting text.
func scanHead(n *html.Node, p *page) {
	stack := []*html.Node{n}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch {
		case n.Type == html.CommentNode && p.singleFile == nil:
			p.singleFile = ParseSingleFileComment(n.Data)
		case n.DataAtom == atom.Title && p.title == "":
			p.title = collapse(nodeText(n))
		case n.DataAtom == atom.Meta:
			collectMeta(n, p.meta)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			stack = append(stack, c)
		}
	}
}

func collectMeta(n *html.Node, into map[string]string) {
	var name, property, content, charset string
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "name":
			name = a.Val
		case "property":
			property = a.Val
		case "content":
			content = a.Val
		case "charset":
			charset = a.Val
		}
	}
	switch {
	case name != "":
		into[name] = content
	case property != "":
		into[property] = content
	case charset != "":
		into["charset"] = charset
	}
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	stack := []*html.Node{n}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		for k := c.LastChild; k != nil; k = k.PrevSibling {
			stack = append(stack, k)
		}
	}
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeText trims each line, collapses horizontal whitespace and keeps
// at most one blank line between paragraphs.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, l := range lines {
		l = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
		if l == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, l)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
