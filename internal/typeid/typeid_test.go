package typeid

import (
	"strings"
	"testing"
)

func TestNewElementIDValidates(t *testing.T) {
	id := NewElementID()
	if !strings.HasPrefix(id, PrefixElement+"_") {
		t.Fatalf("expected %q prefix, got %q", PrefixElement, id)
	}
	if err := Validate(id, PrefixElement); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := Validate(id, PrefixAnnotation); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewAnnotationID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if err := Validate("not an id", PrefixElement); err == nil {
		t.Fatal("expected error for malformed id")
	}
}
