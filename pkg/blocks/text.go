package blocks

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// markupTag matches something that parses as an HTML tag, so a literal
// comparison like "a<b" stays plain text.
var markupTag = regexp.MustCompile(`<[a-zA-Z/!][^<>]*>`)

// breaksText lists elements that separate words. Inline elements such as
// <em> or <a> join their text to the neighbouring text.
var breaksText = map[string]bool{
	"p": true, "div": true, "br": true, "hr": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "tr": true, "td": true, "th": true,
	"blockquote": true, "pre": true, "section": true, "article": true, "figcaption": true,
}

// htmlText returns the visible text of s with whitespace collapsed.
func htmlText(s string) string {
	if !markupTag.MatchString(s) {
		return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}

	var b strings.Builder
	var walk func(sel *goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			name := goquery.NodeName(c)
			switch {
			case name == "#text":
				b.WriteString(c.Text())
			case name == "script", name == "style", name == "#comment":
			case breaksText[name]:
				b.WriteByte(' ')
				walk(c)
				b.WriteByte(' ')
			default:
				walk(c)
			}
		})
	}
	walk(doc.Find("body"))
	return strings.Join(strings.Fields(b.String()), " ")
}

// countWords counts whitespace-separated words.
func countWords(s string) int {
	return len(strings.Fields(s))
}
