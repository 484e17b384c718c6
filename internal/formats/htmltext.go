package formats

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	blankLines = regexp.MustCompile(`\n{3,}`)
	inlineWS   = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// HTMLToText flattens an HTML fragment into readable text. Paragraph-like
// elements become line-broken blocks, list items become "- text" and anchors
// become "text (href)".
func HTMLToText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	var hrefs []string
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return tidy(b.String())
		case html.TextToken:
			b.WriteString(inlineWS.ReplaceAllString(strings.ReplaceAll(string(z.Text()), "\n", " "), " "))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "br":
				b.WriteString("\n")
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "table", "tr", "blockquote":
				b.WriteString("\n\n")
			case "li":
				b.WriteString("\n- ")
			case "a":
				href := ""
				for hasAttr {
					var k, v []byte
					k, v, hasAttr = z.TagAttr()
					if string(k) == "href" {
						href = string(v)
					}
				}
				if tt == html.StartTagToken {
					hrefs = append(hrefs, href)
				}
			case "img":
				alt := ""
				for hasAttr {
					var k, v []byte
					k, v, hasAttr = z.TagAttr()
					if string(k) == "alt" {
						alt = string(v)
					}
				}
				if alt != "" {
					b.WriteString("[" + alt + "]")
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "table", "tr", "blockquote":
				b.WriteString("\n\n")
			case "td", "th":
				b.WriteString(" ")
			case "a":
				if n := len(hrefs); n > 0 {
					if href := hrefs[n-1]; href != "" {
						b.WriteString(" (" + href + ")")
					}
					hrefs = hrefs[:n-1]
				}
			}
		}
	}
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// OneLine collapses any run of whitespace, tabs and newlines included, to a
// single space.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
