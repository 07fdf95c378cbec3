package digest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// sha256 of "hello world"
const helloSum = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestSHA256Reader(t *testing.T) {
	sum, n, err := SHA256Reader(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("SHA256Reader failed: %v", err)
	}
	if sum != helloSum {
		t.Errorf("sum = %s, want %s", sum, helloSum)
	}
	if n != 11 {
		t.Errorf("n = %d, want 11", n)
	}
}

func TestSHA256File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	if err := os.WriteFile(path, []byte("hello world"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	sum, err := SHA256File(path)
	if err != nil {
		t.Fatalf("SHA256File failed: %v", err)
	}
	if sum != helloSum {
		t.Errorf("sum = %s, want %s", sum, helloSum)
	}
	if SHA256Bytes([]byte("hello world")) != helloSum {
		t.Error("SHA256Bytes mismatch")
	}
}

func TestIsSHA256Hex(t *testing.T) {
	tests := map[string]bool{
		helloSum:                  true,
		strings.ToUpper(helloSum): false,
		helloSum[:63]:             false,
		"REPLACE_WITH_SHA256":     false,
		helloSum[:63] + "g":       false,
	}
	for in, want := range tests {
		if got := IsSHA256Hex(in); got != want {
			t.Errorf("IsSHA256Hex(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal(helloSum, strings.ToUpper(helloSum)) {
		t.Error("Equal should ignore case")
	}
	if Equal(helloSum, helloSum[:63]+"0") {
		t.Error("Equal should detect differing digests")
	}
}

func TestShort(t *testing.T) {
	if got := Short(helloSum); got != "b94d27b9...fcde9" {
		t.Errorf("Short = %q", got)
	}
	if got := Short("abc"); got != "abc" {
		t.Errorf("Short(abc) = %q", got)
	}
}
