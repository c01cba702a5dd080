package report

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, tr, pre, blockquote, dt, dd"

// Document is a report rendered for a terminal
type Document struct {
	Title string
	Lines []string
}

// String renders the document with an underlined title
func (d Document) String() string {
	var b strings.Builder
	if d.Title != "" {
		b.WriteString(d.Title)
		b.WriteString("\n")
		b.WriteString(strings.Repeat("=", len([]rune(d.Title))))
		b.WriteString("\n\n")
	}
	for _, line := range d.Lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// Render converts report HTML into text. Scripts and styles are dropped, headings
// keep a # marker per level, list items become dashes and table rows pipe-separated cells.
func Render(html string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Document{}, fmt.Errorf("parse report html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	out := Document{Title: cleanText(doc.Find("title").First().Text())}

	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// nested blocks are rendered as part of their outermost block
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if line := renderBlock(s); line != "" {
			out.Lines = append(out.Lines, line)
		}
	})

	if len(out.Lines) == 0 {
		if text := cleanText(doc.Find("body").Text()); text != "" {
			out.Lines = append(out.Lines, text)
		}
	}
	if out.Title == "" {
		out.Title = cleanText(doc.Find("h1").First().Text())
		if out.Title != "" && len(out.Lines) > 0 && out.Lines[0] == "# "+out.Title {
			out.Lines = out.Lines[1:]
		}
	}
	return out, nil
}

func renderBlock(s *goquery.Selection) string {
	tag := goquery.NodeName(s)
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		text := cleanText(s.Text())
		if text == "" {
			return ""
		}
		return strings.Repeat("#", int(tag[1]-'0')) + " " + text
	case "li":
		if text := cleanText(s.Text()); text != "" {
			return "- " + text
		}
		return ""
	case "tr":
		var cells []string
		s.Find("th, td").Each(func(_ int, c *goquery.Selection) {
			cells = append(cells, cleanText(c.Text()))
		})
		if strings.TrimSpace(strings.Join(cells, "")) == "" {
			return ""
		}
		return strings.Join(cells, " | ")
	case "pre":
		return strings.TrimRight(s.Text(), "\n ")
	case "blockquote":
		if text := cleanText(s.Text()); text != "" {
			return "> " + text
		}
		return ""
	case "dd":
		if text := cleanText(s.Text()); text != "" {
			return "  " + text
		}
		return ""
	default:
		return cleanText(s.Text())
	}
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
