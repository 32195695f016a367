package idgen

import (
	"strings"
	"testing"
)

func TestNew_UniqueAndValid(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if !Valid(id) {
			t.Fatalf("New() produced invalid uuid %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("req_")
	if !strings.HasPrefix(id, "req_") {
		t.Fatalf("missing prefix: %q", id)
	}
	if len(id) != len("req_")+32 {
		t.Errorf("unexpected length %d for %q", len(id), id)
	}
}

func TestValid_RejectsGarbage(t *testing.T) {
	if Valid("not-a-uuid") {
		t.Error("expected garbage to be invalid")
	}
}
