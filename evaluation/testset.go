package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SampleTestSet is written when no test set exists yet.
func SampleTestSet() []TestCase {
	return []TestCase{
		{
			Question:         "What is artificial intelligence?",
			ExpectedKeywords: []string{"AI", "machine", "learning", "computer", "intelligence"},
			Context:          "General AI question",
		},
		{
			Question:         "How does machine learning work?",
			ExpectedKeywords: []string{"data", "algorithm", "pattern", "model", "training"},
			Context:          "Technical ML question",
		},
		{
			Question:         "What are the benefits of using AI?",
			ExpectedKeywords: []string{"efficiency", "automation", "accuracy", "productivity"},
			Context:          "Benefits question",
		},
	}
}

// LoadTestSet reads a JSON array of test cases. A missing file is created
// with SampleTestSet, which is then returned.
func LoadTestSet(path string) ([]TestCase, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		tests := SampleTestSet()
		if err := writeJSON(path, tests); err != nil {
			return nil, fmt.Errorf("write sample test set: %w", err)
		}
		return tests, nil
	}
	if err != nil {
		return nil, err
	}

	var tests []TestCase
	if err := json.Unmarshal(data, &tests); err != nil {
		return nil, fmt.Errorf("parse test set %s: %w", path, err)
	}
	return tests, nil
}

// SaveReport writes report as indented JSON. An empty path writes
// eval_YYYYMMDD_HHMMSS.json under the configured output directory. It
// returns the path written.
func (e *Evaluator) SaveReport(report *Report, path string) (string, error) {
	if path == "" {
		dir := e.cfg.OutputPath
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, "eval_"+report.Timestamp.Format("20060102_150405")+".json")
	}
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	e.opts.Logger.Info("evaluation.report.saved", "path", path)
	return path, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
