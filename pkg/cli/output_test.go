package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutput_JSON(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{
		"id":     "7c9e6679",
		"events": 12,
	}

	err := Output(data, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	// Verify valid JSON
	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}

	if result["id"] != "7c9e6679" {
		t.Errorf("id = %v, want %q", result["id"], "7c9e6679")
	}
}

func TestOutput_YAML(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]any{
		"id":     "7c9e6679",
		"events": 12,
	}

	err := Output(data, OutputOptions{
		Format: FormatYAML,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "id: 7c9e6679") {
		t.Errorf("Output should contain 'id: 7c9e6679', got: %s", output)
	}
}

func TestOutput_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]string{"key": "value"}

	// Empty format should default to YAML
	err := Output(data, OutputOptions{
		Format: "",
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "key: value") {
		t.Errorf("Default format should be YAML, got: %s", output)
	}
}

func TestOutput_Raw_Bytes(t *testing.T) {
	var buf bytes.Buffer

	data := []byte("raw binary data")

	err := Output(data, OutputOptions{
		Format: FormatRaw,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	if buf.String() != "raw binary data" {
		t.Errorf("Output = %q, want %q", buf.String(), "raw binary data")
	}
}

func TestOutput_Raw_String(t *testing.T) {
	var buf bytes.Buffer

	data := "raw string data"

	err := Output(data, OutputOptions{
		Format: FormatRaw,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	if buf.String() != "raw string data" {
		t.Errorf("Output = %q, want %q", buf.String(), "raw string data")
	}
}

func TestOutput_Raw_Other(t *testing.T) {
	var buf bytes.Buffer

	// Non-string/bytes should fall back to YAML
	data := map[string]int{"count": 42}

	err := Output(data, OutputOptions{
		Format: FormatRaw,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	if !strings.Contains(buf.String(), "count: 42") {
		t.Errorf("Output should contain YAML, got: %s", buf.String())
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer

	err := Output("data", OutputOptions{
		Format: "invalid",
		Writer: &buf,
	})
	if err == nil {
		t.Error("Output should fail for unsupported format")
	}
}

func TestOutput_ToFile(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "output.json")

	data := map[string]string{"key": "value"}

	err := Output(data, OutputOptions{
		Format: FormatJSON,
		File:   filePath,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	// Read and verify file
	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(content, &result); err != nil {
		t.Fatalf("Invalid JSON in file: %v", err)
	}

	if result["key"] != "value" {
		t.Errorf("key = %q, want %q", result["key"], "value")
	}
}

func TestOutput_JSONIndent(t *testing.T) {
	var buf bytes.Buffer

	data := map[string]string{"key": "value"}

	err := Output(data, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
		Indent: "    ", // 4 spaces
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	// Should contain indentation
	if !strings.Contains(buf.String(), "    ") {
		t.Errorf("Output should be indented, got: %s", buf.String())
	}
}
