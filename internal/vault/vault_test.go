package vault

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLayoutPaths(t *testing.T) {
	root := t.TempDir()
	layout, err := NewLayout(root)
	if err != nil {
		t.Fatalf("new layout failed: %v", err)
	}
	if got := layout.RawRel("2026-01-10"); got != "Omi/Raw/2026-01-10.md" {
		t.Fatalf("unexpected raw path %q", got)
	}
	if got := layout.HighlightsRel("2026-01-10"); got != "Omi/Highlights/2026-01-10 Highlights.md" {
		t.Fatalf("unexpected highlights path %q", got)
	}
	if got := layout.EventRel("x.md"); got != "Omi/Events/x.md" {
		t.Fatalf("unexpected event path %q", got)
	}
	abs, err := layout.Abs("Omi/Events/x.md")
	if err != nil {
		t.Fatalf("abs failed: %v", err)
	}
	if abs != filepath.Join(root, "Omi", "Events", "x.md") {
		t.Fatalf("unexpected abs path %q", abs)
	}
	rel, err := layout.Rel(abs)
	if err != nil || rel != "Omi/Events/x.md" {
		t.Fatalf("expected round trip rel, got %q (%v)", rel, err)
	}
	for _, rel := range []string{"../../etc/passwd", "Omi/Events/../../../outside.md", "..", "/etc/passwd", "", "Omi/.."} {
		if got, err := layout.Abs(rel); err == nil {
			t.Fatalf("expected Abs(%q) to be rejected, got %q", rel, got)
		}
	}
	inside, err := layout.Abs("Omi/Events/../Raw/2026-01-10.md")
	if err != nil || inside != filepath.Join(root, "Omi", "Raw", "2026-01-10.md") {
		t.Fatalf("expected in-vault dot segments to resolve, got %q (%v)", inside, err)
	}
	if _, err := layout.Rel(filepath.Dir(root)); err == nil {
		t.Fatalf("expected error for path outside root")
	}
	if _, err := NewLayout("  "); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.md")
	if err := WriteFileAtomic(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "two" {
		t.Fatalf("expected replaced content, got %q", string(data))
	}
	if !Unchanged(path, []byte("two")) || Unchanged(path, []byte("one")) {
		t.Fatalf("unexpected Unchanged result")
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestRemoveFileIgnoresMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.md")
	if err := RemoveFile(path); err != nil {
		t.Fatalf("remove of missing file failed: %v", err)
	}
}

func TestListDocumentsSkipsHiddenAndDirs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.md", "a.md", ".a.md.tmp-1.md", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("seed %s failed: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.md"), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	paths, err := ListDocuments(dir)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "a.md" || filepath.Base(paths[1]) != "b.md" {
		t.Fatalf("unexpected documents: %v", paths)
	}
	missing, err := ListDocuments(filepath.Join(dir, "missing"))
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing dir, got %v (%v)", missing, err)
	}
}

func TestParseDocumentFrontmatterAndHeadings(t *testing.T) {
	content := "---\nomi_id: conv_001\ndate: '2026-01-10'\nplain_date: 2026-01-11\n---\n\n# Title\n\n## 10:00 — Meeting (omi:conv_001)\n\n<details>\n## not a heading\n</details>\n\n## 11:00 — Other (omi:conv_002)\n"
	doc, err := ParseDocument(content)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if doc.String("omi_id") != "conv_001" {
		t.Fatalf("unexpected omi_id %q", doc.String("omi_id"))
	}
	if doc.String("date") != "2026-01-10" || doc.String("plain_date") != "2026-01-11" {
		t.Fatalf("unexpected dates %q %q", doc.String("date"), doc.String("plain_date"))
	}
	if doc.String("missing") != "" {
		t.Fatalf("expected empty string for missing key")
	}
	var level2 []string
	for _, h := range doc.Headings {
		if h.Level == 2 {
			level2 = append(level2, h.Text)
		}
	}
	if len(level2) != 2 || level2[1] != "11:00 — Other (omi:conv_002)" {
		t.Fatalf("unexpected headings: %v", level2)
	}
}

func TestParseDocumentRejectsBrokenFrontmatter(t *testing.T) {
	if _, err := ParseDocument("---\nomi_id: [unclosed\n---\nbody"); err == nil {
		t.Fatalf("expected yaml error")
	}
	if _, err := ParseDocument("---\nomi_id: x\nno end"); err == nil {
		t.Fatalf("expected unterminated frontmatter error")
	}
	doc, err := ParseDocument("# No frontmatter\n")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(doc.Frontmatter) != 0 || len(doc.Headings) != 1 {
		t.Fatalf("unexpected document: %+v", doc)
	}
}
