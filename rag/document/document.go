// Package document loads source files into plain text and splits them into
// overlapping chunks for embedding.
package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
	"github.com/ledongthuc/pdf"
)

// Metadata keys attached to loaded documents and their chunks.
const (
	MetaSource     = "source"
	MetaFileType   = "file_type"
	MetaChunkIndex = "chunk_index"
)

// Document is the extracted text of one file.
type Document struct {
	Content  string
	Metadata map[string]any
}

// Source returns the originating path.
func (d Document) Source() string {
	s, _ := d.Metadata[MetaSource].(string)
	return s
}

// UnsupportedFormatError is returned for extensions without a loader.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported document format: %q", e.Ext)
}

// Load reads one file and extracts its text based on the extension.
func Load(path string) (Document, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		text string
		err  error
	)
	switch ext {
	case ".txt":
		var b []byte
		b, err = os.ReadFile(path)
		text = string(b)
	case ".md", ".markdown":
		var b []byte
		if b, err = os.ReadFile(path); err == nil {
			text = MarkdownText(b)
		}
	case ".pdf":
		text, err = loadPDF(path)
	case ".docx":
		text, err = loadDOCX(path)
	default:
		return Document{}, &UnsupportedFormatError{Ext: ext}
	}
	if err != nil {
		return Document{}, fmt.Errorf("load %s: %w", path, err)
	}

	return Document{
		Content: text,
		Metadata: map[string]any{
			MetaSource:   path,
			MetaFileType: strings.TrimPrefix(ext, "."),
		},
	}, nil
}

// Discover walks root and returns the files whose extension is in formats,
// sorted by path. A missing root is created and yields no files.
func Discover(root string, formats []string) ([]string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create document path: %w", err)
	}

	allowed := make(map[string]bool, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" && !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		allowed[f] = true
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if allowed[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// MarkdownText parses markdown and returns its textual content with block
// elements separated by blank lines.
func MarkdownText(src []byte) string {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse(src)

	var sb strings.Builder
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		switch node.(type) {
		case *ast.Paragraph, *ast.Heading, *ast.CodeBlock, *ast.TableRow:
			if !entering {
				sb.WriteString("\n\n")
			}
		case *ast.Softbreak, *ast.Hardbreak:
			sb.WriteString("\n")
		case *ast.TableCell:
			if !entering {
				sb.WriteString(" ")
			}
		}
		if entering {
			if leaf := node.AsLeaf(); leaf != nil {
				sb.Write(leaf.Literal)
			}
		}
		return ast.GoToNext
	})
	return strings.TrimSpace(sb.String())
}

func loadPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	rd, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rd); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func loadDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return docxParagraphs(rc)
	}
	return "", fmt.Errorf("word/document.xml not found")
}

// docxParagraphs collects w:t runs and joins w:p paragraphs with newlines.
func docxParagraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br":
				current.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(current.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return strings.Join(paragraphs, "\n"), nil
}
