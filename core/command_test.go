package core

import (
	"strings"
	"testing"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	err := registry.Register(CommandSpec{Kind: CmdStart, Key: 'g', Name: "start", Label: "start"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	spec, ok := registry.Lookup('g')
	if !ok {
		t.Fatal("Failed to look up registered key")
	}
	if spec.Name != "start" || spec.Kind != CmdStart {
		t.Errorf("Expected start/CmdStart, got %s/%d", spec.Name, spec.Kind)
	}
	if _, ok := registry.ByKind(CmdStart); !ok {
		t.Error("ByKind missed registered command")
	}
	if _, ok := registry.ByName("start"); !ok {
		t.Error("ByName missed registered command")
	}
	if _, ok := registry.Lookup('z'); ok {
		t.Error("Lookup found unregistered key")
	}
}

func TestCommandRegistryDuplicates(t *testing.T) {
	registry := NewCommandRegistry()
	if err := registry.Register(CommandSpec{Kind: CmdStart, Key: 'g', Name: "start"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tests := []struct {
		name string
		spec CommandSpec
	}{
		{"key", CommandSpec{Kind: CmdStop, Key: 'g', Name: "stop"}},
		{"kind", CommandSpec{Kind: CmdStart, Key: 'h', Name: "go"}},
		{"name", CommandSpec{Kind: CmdStop, Key: 'h', Name: "start"}},
	}
	for _, tt := range tests {
		if err := registry.Register(tt.spec); err == nil {
			t.Errorf("Expected duplicate %s to be rejected", tt.name)
		}
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 command after rejected duplicates, got %d", registry.Count())
	}
}

func TestDefaultCommands(t *testing.T) {
	registry := DefaultCommands()

	if registry.Count() != 13 {
		t.Fatalf("Expected 13 default commands, got %d", registry.Count())
	}

	// Menu keys run a..m in registration order
	for i, spec := range registry.Commands() {
		if want := byte('a' + i); spec.Key != want {
			t.Errorf("Command %d: expected key %c, got %c", i, want, spec.Key)
		}
		if spec.Arg == ArgChoice && len(spec.Choices) == 0 {
			t.Errorf("Choice command %s has no choices", spec.Name)
		}
		if spec.Arg != ArgNone && spec.Prompt == "" {
			t.Errorf("Command %s takes an argument but has no prompt", spec.Name)
		}
	}

	sim, _ := registry.ByKind(CmdSetSimMode)
	if len(sim.Choices) != 4 {
		t.Errorf("Expected 4 SIM choices, got %d", len(sim.Choices))
	}
}

func TestCommandMenu(t *testing.T) {
	menu := DefaultCommands().Menu()

	if !strings.HasPrefix(menu, "\n\n\n") {
		t.Errorf("Menu should start with blank lines: %q", menu[:8])
	}
	if !strings.HasSuffix(menu, "\nEnter Choice:") {
		t.Errorf("Menu should end with the choice prompt")
	}
	if !strings.Contains(menu, "\n a) set FPS") {
		t.Errorf("Menu missing FPS entry:\n%s", menu)
	}
}
