// Package export serializes a conversation as Markdown or JSON.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hupe1980/chatmesh/core"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// FormatVersion is written into JSON exports.
const FormatVersion = "1.0"

// Ext returns the file extension of the format.
func (f Format) Ext() string {
	if f == FormatMarkdown {
		return ".md"
	}
	return ".json"
}

// ParseFormat resolves a format name ("json", "md", "markdown"). An empty
// name falls back to the extension of path, then to JSON.
func ParseFormat(name, path string) (Format, error) {
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	switch strings.ToLower(name) {
	case "", "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", name)
	}
}

// Exporter writes conversations. Now stamps the export date.
type Exporter struct {
	Now func() time.Time
}

// New returns an Exporter using the wall clock.
func New() *Exporter { return &Exporter{Now: time.Now} }

var std = New()

// JSON writes messages as an indented JSON document.
func JSON(w io.Writer, agent string, messages []core.Message) error {
	return std.JSON(w, agent, messages)
}

// Markdown writes messages as a Markdown transcript.
func Markdown(w io.Writer, agent string, messages []core.Message) error {
	return std.Markdown(w, agent, messages)
}

// Write exports messages to path. See Exporter.Write.
func Write(path string, format string, agent string, messages []core.Message) (string, error) {
	return std.Write(path, format, agent, messages)
}

type jsonMessage struct {
	Role      core.Role      `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

type jsonDocument struct {
	ExportDate    time.Time     `json:"export_date"`
	FormatVersion string        `json:"format_version"`
	Agent         string        `json:"agent"`
	MessageCount  int           `json:"message_count"`
	Messages      []jsonMessage `json:"messages"`
}

// JSON writes messages as an indented JSON document.
func (e *Exporter) JSON(w io.Writer, agent string, messages []core.Message) error {
	doc := jsonDocument{
		ExportDate:    e.Now(),
		FormatVersion: FormatVersion,
		Agent:         agent,
		MessageCount:  len(messages),
		Messages:      make([]jsonMessage, len(messages)),
	}
	for i, m := range messages {
		md := m.Metadata
		if md == nil {
			md = map[string]any{}
		}
		doc.Messages[i] = jsonMessage{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp, Metadata: md}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Markdown writes messages as a Markdown transcript with one section per
// message. Tools used by the assistant are listed under its answer.
func (e *Exporter) Markdown(w io.Writer, agent string, messages []core.Message) error {
	var sb strings.Builder
	sb.WriteString("# Chat History Export\n\n")
	if agent != "" {
		fmt.Fprintf(&sb, "Agent: %s\n\n", agent)
	}
	fmt.Fprintf(&sb, "Exported: %s\n\n---\n\n", e.Now().Format("2006-01-02 15:04:05"))

	for _, m := range messages {
		fmt.Fprintf(&sb, "### %s - %s\n\n", roleTitle(m.Role), m.Timestamp.Format("2006-01-02 15:04:05"))
		sb.WriteString(m.Content)
		sb.WriteString("\n\n")
		if m.Role == core.RoleAssistant {
			if tools := m.ToolsExecuted(); len(tools) > 0 {
				sb.WriteString("_Tools used:_\n\n")
				for _, t := range tools {
					fmt.Fprintf(&sb, "- %s\n", t)
				}
				sb.WriteString("\n")
			}
		}
		sb.WriteString("---\n\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func roleTitle(r core.Role) string {
	s := string(r)
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// DefaultFileName returns chat_export_YYYYMMDD_HHMMSS with the format's
// extension.
func DefaultFileName(f Format, t time.Time) string {
	return "chat_export_" + t.Format("20060102_150405") + f.Ext()
}

// Write exports messages to path in the given format (by name, or inferred
// from the extension). An empty path or a directory path receives the
// default file name. Directories are created 0700 and the file is written
// 0600. It returns the path written.
func (e *Exporter) Write(path string, format string, agent string, messages []core.Message) (string, error) {
	f, err := ParseFormat(format, path)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = DefaultFileName(f, e.Now())
	} else if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, DefaultFileName(f, e.Now()))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}

	if f == FormatMarkdown {
		err = e.Markdown(file, agent, messages)
	} else {
		err = e.JSON(file, agent, messages)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("export %s: %w", path, err)
	}
	return path, nil
}
