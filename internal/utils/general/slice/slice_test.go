package slice_test

import (
	"testing"

	"github.com/open-edge-platform/tapkeeper/internal/utils/general/slice"
)

func TestContains(t *testing.T) {
	_slice := []string{"foo", "bar"}
	if !slice.Contains(_slice, "foo") {
		t.Errorf("Contains should return true for existing element")
	}
	if slice.Contains(_slice, "baz") {
		t.Errorf("Contains should return false for non-existing element")
	}
	if !slice.Contains([]int{1, 2, 3}, 2) {
		t.Errorf("Contains should work for ints")
	}
}

func TestContainsFold(t *testing.T) {
	licenses := []string{"MIT", "Apache-2.0"}
	if !slice.ContainsFold(licenses, "mit") {
		t.Errorf("ContainsFold should ignore case")
	}
	if slice.ContainsFold(licenses, "GPL-3.0-only") {
		t.Errorf("ContainsFold should return false for missing element")
	}
}

func TestUnique(t *testing.T) {
	result := slice.Unique([]string{"v1.0.0", "v1.0.1", "v1.0.0", "v1.0.3", "v1.0.3"})
	expected := []string{"v1.0.0", "v1.0.1", "v1.0.3"}
	if len(result) != len(expected) {
		t.Fatalf("Expected length %d, got %d", len(expected), len(result))
	}
	for i, v := range expected {
		if result[i] != v {
			t.Errorf("Expected %s at %d, got %s", v, i, result[i])
		}
	}
}

func TestDifference(t *testing.T) {
	result := slice.Difference([]string{"a", "b", "c"}, []string{"b"})
	if len(result) != 2 || result[0] != "a" || result[1] != "c" {
		t.Errorf("Difference returned %v", result)
	}
	if slice.Difference([]string{"a"}, []string{"a"}) != nil {
		t.Errorf("Difference of equal sets should be nil")
	}
}
