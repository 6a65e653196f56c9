// Package render produces the markdown documents written to the vault. Every
// generator is a pure function of its inputs; the only time-dependent field
// is generated_at, which callers pass in explicitly.
package render

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Frontmatter renders fields as a YAML block delimited by "---" lines. Keys
// are emitted in sorted order so equal inputs give equal bytes.
func Frontmatter(fields map[string]any) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	if len(fields) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(fields); err != nil {
			return "", fmt.Errorf("encode frontmatter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return "", fmt.Errorf("encode frontmatter: %w", err)
		}
	}
	buf.WriteString("---\n")
	return buf.String(), nil
}
