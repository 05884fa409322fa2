package pipeline

import "testing"

func TestRegistryKeepsOrderAndIgnoresNil(t *testing.T) {
	registry := NewRegistry(&testStage{name: "a"}, nil, &testStage{name: "b"})
	registry.Register(&testStage{name: "c"})

	names := registry.Names()
	if len(names) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(names))
	}
	for i, want := range []string{"a", "b", "c"} {
		if names[i] != want {
			t.Fatalf("stage %d: expected %q, got %q", i, want, names[i])
		}
	}

	stages := registry.Stages()
	stages[0] = nil
	if registry.Stages()[0] == nil {
		t.Fatalf("Stages must return a copy")
	}
}
