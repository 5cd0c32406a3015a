package peerid

import "testing"

func TestGeneratePrefixAndLength(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(id[:8]) != prefix {
		t.Fatalf("expected prefix %q, got %q", prefix, id[:8])
	}
	if len(id) != 20 {
		t.Fatalf("expected 20 bytes, got %d", len(id))
	}
}

func TestGenerateVaries(t *testing.T) {
	a, _ := Generate()
	b, _ := Generate()
	if a == b {
		t.Fatal("two generated peer ids should essentially never collide")
	}
}
