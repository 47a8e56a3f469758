package portal

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// findInputValue extracts the value of the first <input> whose name
// attribute matches. Portal pages are served by half a dozen template
// engines with varying quality; the tolerant parser handles all of them
// where string surgery would not.
func findInputValue(body []byte, name string) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var value string
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "input" {
			return true
		}
		if attr(n, "name") != name {
			return true
		}
		value = attr(n, "value")
		return false
	})
	return value
}

// firstCaseLinkID extracts the data-caseid of the first anchor carrying
// the caseLink class on a Smart Search results page.
func firstCaseLinkID(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var id string
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "a" {
			return true
		}
		if !hasClass(n, "caseLink") {
			return true
		}
		if v := attr(n, "data-caseid"); v != "" {
			id = v
			return false
		}
		return true
	})
	return id
}

// walk runs fn over the tree depth-first, stopping when fn returns
// false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
