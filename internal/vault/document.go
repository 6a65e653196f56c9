package vault

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Document is a markdown file split into its YAML frontmatter and body.
type Document struct {
	Frontmatter map[string]any
	Body        string
	Headings    []Heading
}

// Heading is one ATX heading in the body.
type Heading struct {
	Level int
	Text  string
	Line  int
}

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// ParseDocument splits content into frontmatter and body. Frontmatter that is
// not valid YAML is reported as an error so callers can skip the document.
func ParseDocument(content string) (*Document, error) {
	doc := &Document{Frontmatter: map[string]any{}}
	body := content
	if strings.HasPrefix(content, "---\n") {
		end := strings.Index(content[4:], "\n---")
		if end < 0 {
			return nil, fmt.Errorf("unterminated frontmatter")
		}
		if end > 0 {
			if err := yaml.Unmarshal([]byte(content[4:4+end]), &doc.Frontmatter); err != nil {
				return nil, fmt.Errorf("parse frontmatter: %w", err)
			}
			if doc.Frontmatter == nil {
				doc.Frontmatter = map[string]any{}
			}
		}
		body = strings.TrimPrefix(content[4+end+4:], "\n")
	}
	doc.Body = body
	doc.Headings = parseHeadings(body)
	return doc, nil
}

// ReadDocument loads and parses the markdown file at path.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDocument(string(data))
}

// String returns a scalar frontmatter value rendered as text. Dates decoded
// by YAML as timestamps are rendered as YYYY-MM-DD.
func (d *Document) String(key string) string {
	switch v := d.Frontmatter[key].(type) {
	case string:
		return v
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func parseHeadings(body string) []Heading {
	var headings []Heading
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	inDetails := false
	for scanner.Scan() {
		line++
		text := scanner.Text()
		switch strings.TrimSpace(text) {
		case "<details>":
			inDetails = true
			continue
		case "</details>":
			inDetails = false
			continue
		}
		if inDetails {
			continue
		}
		if match := headingPattern.FindStringSubmatch(text); match != nil {
			headings = append(headings, Heading{Level: len(match[1]), Text: match[2], Line: line})
		}
	}
	return headings
}
