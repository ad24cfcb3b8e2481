package shutdown

import (
	"errors"
	"os"
	"strings"
	"testing"

	"hearthsync/pkg/state"
)

func TestWriteDumpUsesStateLayout(t *testing.T) {
	old := state.PathsVar
	t.Cleanup(func() { state.PathsVar = old })
	state.PathsVar = state.Paths{State: t.TempDir()}

	path, err := WriteDump("store corrupt", errors.New("pebble: manifest missing"))
	if err != nil {
		t.Fatalf("WriteDump: %v", err)
	}
	if !strings.HasPrefix(path, state.PathsVar.State) {
		t.Fatalf("dump outside state layout: %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, "reason: store corrupt") || !strings.Contains(out, "manifest missing") {
		t.Fatalf("dump missing report fields:\n%s", out)
	}
	if !strings.Contains(out, "goroutine") {
		t.Fatalf("dump missing goroutine stacks")
	}
}
