package config

import (
	"testing"
)

// FuzzLoad tests the Load function with various file inputs
func FuzzLoad(f *testing.F) {
	f.Add("workers: 4\n")
	f.Add("{}")
	f.Add("")
	f.Add("invalid: yaml: content: [")
	f.Add("logging:\n  level: debug\n  file: \"\"\n")
	f.Add("release: null\n")
	f.Add("http_timeout: -5s\n")

	f.Fuzz(func(t *testing.T, yamlContent string) {
		tempFile := t.TempDir() + "/tapkeeper.yml"
		if err := writeTestFile(tempFile, yamlContent); err != nil {
			t.Skip("Failed to create temp file")
		}

		cfg, err := Load(tempFile)
		if err != nil {
			if cfg != nil {
				t.Error("Expected nil config when error occurred")
			}
			return
		}
		if cfg == nil {
			t.Error("Expected non-nil config when no error occurred")
		}
	})
}
