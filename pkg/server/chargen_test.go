package server

import (
	"strings"
	"testing"

	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
)

// runChargen feeds a full creation flow through the descriptor's prompt hook.
func runChargen(t *testing.T, d *Descriptor, lines []string) {
	t.Helper()
	for _, line := range lines {
		if d.PromptFunc == nil {
			t.Fatalf("prompt hook gone before input %q", line)
		}
		if d.PromptFunc(line) {
			d.PromptFunc = nil
		}
	}
}

var chargenScript = []string{
	"",     // welcome
	"Talia", // name
	"5", "5", "5", "5", "5", "5", // stats
	"yes", // confirm
}

func TestChargen_CompletesAndBinds(t *testing.T) {
	env := newTestEnv(t)
	d := env.newTestDescriptor(t, env.boris)

	char, _, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("BeginOrResumeCreation: %v", err)
	}
	env.game.StartChargen(d, env.boris, char)
	runChargen(t, d, chargenScript)

	if char.InProgress() {
		t.Error("cursor not cleared after completion")
	}
	if char.Name != "Talia" {
		t.Errorf("name = %q, want Talia", char.Name)
	}
	if char.Stats.Total() != 30 {
		t.Errorf("stats total = %d, want 30", char.Stats.Total())
	}
	if env.game.Binder.Holder(char.Ref) != d {
		t.Error("finished character not bound to creator")
	}
	if char.Location != env.room {
		t.Errorf("location = #%d, want start room #%d", char.Location, env.room)
	}
}

func TestChargen_CursorPersistedPerStep(t *testing.T) {
	env := newTestEnv(t)
	rs := &recordingStore{}
	env.game.Store = rs
	d := env.newTestDescriptor(t, env.boris)

	char, _, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("BeginOrResumeCreation: %v", err)
	}
	env.game.StartChargen(d, env.boris, char)

	// Advance past the welcome node only.
	runChargen(t, d, []string{""})

	writes := rs.objectWrites(char.Ref)
	if len(writes) == 0 {
		t.Fatal("no object writes recorded")
	}
	last := writes[len(writes)-1]
	if last.chargenStep != chargenName {
		t.Errorf("persisted cursor = %q, want %q", last.chargenStep, chargenName)
	}
}

func TestChargen_CursorClearedLast(t *testing.T) {
	env := newTestEnv(t)
	rs := &recordingStore{}
	env.game.Store = rs
	d := env.newTestDescriptor(t, env.boris)

	char, _, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("BeginOrResumeCreation: %v", err)
	}
	env.game.StartChargen(d, env.boris, char)
	runChargen(t, d, chargenScript)

	writes := rs.objectWrites(char.Ref)
	if len(writes) < 2 {
		t.Fatalf("writes = %d, want at least 2", len(writes))
	}

	// Every write before the final one must still carry a cursor, and the
	// write that carries the final name must come before the cursor clear.
	var clearIdx, namedIdx = -1, -1
	for i, w := range writes {
		if w.chargenStep == "" && clearIdx == -1 {
			clearIdx = i
		}
		if w.name == "Talia" && namedIdx == -1 {
			namedIdx = i
		}
	}
	if clearIdx == -1 {
		t.Fatal("cursor never cleared in the store")
	}
	if clearIdx != len(writes)-1 {
		t.Errorf("cursor cleared at write %d of %d; must be the last write", clearIdx+1, len(writes))
	}
	if namedIdx == -1 || namedIdx >= clearIdx {
		t.Errorf("finished name written at %d, cursor cleared at %d; name must be durable first", namedIdx, clearIdx)
	}

	// The write directly before the clear already carries the start-room
	// placement; no object write follows the clear.
	if pre := writes[clearIdx-1]; pre.location != env.room {
		t.Errorf("pre-clear write location = #%d, want start room #%d", pre.location, env.room)
	}
}

func TestChargen_ResumesAtStoredCursor(t *testing.T) {
	env := newTestEnv(t)
	d := env.newTestDescriptor(t, env.boris)

	char, _, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("BeginOrResumeCreation: %v", err)
	}
	env.game.StartChargen(d, env.boris, char)

	// Advance to the name step, then drop the connection.
	runChargen(t, d, []string{""})
	d.PromptFunc = nil
	if char.ChargenStep != chargenName {
		t.Fatalf("cursor = %q, want %q", char.ChargenStep, chargenName)
	}

	// A new session resumes at the stored step.
	d2 := env.newTestDescriptor(t, env.boris)
	char2, resumed, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !resumed || char2.Ref != char.Ref {
		t.Fatal("resume returned a different slot")
	}
	env.game.StartChargen(d2, env.boris, char2)

	out := getOutput(d2)
	if !strings.Contains(out, "Choose a name") {
		t.Errorf("resume did not land on the name step, output: %s", out)
	}
}

func TestChargen_RejectsBadNames(t *testing.T) {
	env := newTestEnv(t)
	d := env.newTestDescriptor(t, env.boris)

	char, _, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("BeginOrResumeCreation: %v", err)
	}
	env.game.StartChargen(d, env.boris, char)
	runChargen(t, d, []string{""})

	for _, bad := range []string{"xy", "has space", "d1git", "Alrik"} {
		clearOutput(d)
		runChargen(t, d, []string{bad})
		if char.ChargenStep != chargenName {
			t.Fatalf("name %q advanced the flow", bad)
		}
	}
}

func TestChargen_StatPoolEnforced(t *testing.T) {
	env := newTestEnv(t)
	d := env.newTestDescriptor(t, env.boris)

	char, _, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("BeginOrResumeCreation: %v", err)
	}
	env.game.StartChargen(d, env.boris, char)
	runChargen(t, d, []string{"", "Talia"})

	// Over-limit single value is rejected and the node repeats.
	runChargen(t, d, []string{"11"})
	if char.Stats.Strength != 0 {
		t.Errorf("strength = %d after rejected value", char.Stats.Strength)
	}

	// Spend the whole pool on the first three attributes; the fourth
	// attempt to overspend is rejected, zero still goes through.
	runChargen(t, d, []string{"10", "10", "10", "5"})
	if char.Stats.Stamina != 0 {
		t.Errorf("pool overspend accepted: %+v", char.Stats)
	}
	runChargen(t, d, []string{"0", "0", "0"})
	if char.ChargenStep != chargenConfirm {
		t.Errorf("cursor = %q, want %q", char.ChargenStep, chargenConfirm)
	}
	if char.Stats.Total() != 30 {
		t.Errorf("stats total = %d, want 30", char.Stats.Total())
	}
}

func TestChargen_RestartResetsStats(t *testing.T) {
	env := newTestEnv(t)
	d := env.newTestDescriptor(t, env.boris)

	char, _, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("BeginOrResumeCreation: %v", err)
	}
	env.game.StartChargen(d, env.boris, char)
	runChargen(t, d, []string{"", "Talia", "5", "5", "5", "5", "5", "5", "restart"})

	if char.Stats != (gamedb.Stats{}) {
		t.Errorf("stats not reset on restart: %+v", char.Stats)
	}
	if char.ChargenStep != chargenName {
		t.Errorf("cursor = %q after restart, want %q", char.ChargenStep, chargenName)
	}
}
