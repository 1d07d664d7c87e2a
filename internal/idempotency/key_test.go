package idempotency

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDGeneratorKeysAreDistinct(t *testing.T) {
	const draws = 10_000
	gen := UUIDGenerator{}
	seen := make(map[string]struct{}, draws)

	for i := 0; i < draws; i++ {
		key := gen.NewKey()
		if key == "" {
			t.Fatalf("draw %d returned an empty key", i)
		}
		if _, dup := seen[key]; dup {
			t.Fatalf("draw %d repeated key %s", i, key)
		}
		seen[key] = struct{}{}
	}
}

func TestUUIDGeneratorProducesRandomUUIDs(t *testing.T) {
	parsed, err := uuid.Parse(UUIDGenerator{}.NewKey())
	if err != nil {
		t.Fatalf("key is not a uuid: %v", err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("expected version 4, got %d", parsed.Version())
	}
}

func TestFuncAdapter(t *testing.T) {
	gen := Func(func() string { return "fixed" })
	if got := gen.NewKey(); got != "fixed" {
		t.Fatalf("expected fixed, got %s", got)
	}
}
