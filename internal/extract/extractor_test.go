package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtract_PlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello world\nsecond line"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor()
	text, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "hello world\nsecond line" {
		t.Errorf("Extract() = %q", text)
	}
}

func TestExtract_UnknownExtensionTreatedAsPlain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.log")
	if err := os.WriteFile(path, []byte("log entry"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor()
	text, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "log entry" {
		t.Errorf("Extract() = %q", text)
	}
}

func TestExtract_InvalidUTF8Replaced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(path, []byte{'o', 'k', 0xff, '!'}, 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor()
	text, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(text, "ok") || !strings.Contains(text, "!") {
		t.Errorf("Extract() = %q, want valid bytes preserved", text)
	}
	if strings.Contains(text, "\xff") {
		t.Errorf("Extract() = %q, invalid byte not replaced", text)
	}
}

func TestExtract_MissingFile(t *testing.T) {
	e := NewExtractor()
	if _, err := e.Extract(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("Extract() expected error for missing file")
	}
}

func TestExtractDOCX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.docx")
	writeDOCX(t, path, `<?xml version="1.0"?><w:document><w:body><w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve">from docx</w:t></w:r></w:p></w:body></w:document>`)

	e := NewExtractor()
	text, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Hello from docx" {
		t.Errorf("Extract() = %q, want %q", text, "Hello from docx")
	}
}

func TestExtractDOCX_NotAZip(t *testing.T) {
	if _, err := extractDOCX([]byte("plain bytes")); err == nil {
		t.Error("extractDOCX() expected error for non-zip input")
	}
}

func TestExtractDOCX_MissingDocumentXML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.docx")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/other.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("<x/>")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := extractDOCX(content); err == nil {
		t.Error("extractDOCX() expected error when word/document.xml is absent")
	}
}

func TestSupported(t *testing.T) {
	for _, ext := range []string{".pdf", ".docx", ".xlsx", ".odt", ".rtf", ".txt", ".md", ".PDF"} {
		if !Supported(ext) {
			t.Errorf("Supported(%q) = false, want true", ext)
		}
	}
	for _, ext := range []string{".exe", ".png", ""} {
		if Supported(ext) {
			t.Errorf("Supported(%q) = true, want false", ext)
		}
	}
}

func writeDOCX(t *testing.T, path, documentXML string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}
