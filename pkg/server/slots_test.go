package server

import (
	"errors"
	"testing"

	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
)

func TestBeginCreation_AllocatesSlot(t *testing.T) {
	env := newTestEnv(t)

	char, resumed, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("BeginOrResumeCreation: %v", err)
	}
	if resumed {
		t.Error("fresh slot reported as resumed")
	}
	if !char.InProgress() {
		t.Error("new slot should carry the first chargen step")
	}
	if char.ChargenStep != ChargenStart {
		t.Errorf("cursor = %q, want %q", char.ChargenStep, ChargenStart)
	}
	if char.Location != gamedb.Nothing {
		t.Errorf("new slot location = %d, want Nothing", char.Location)
	}
	if !env.boris.HasCharacter(char.Ref) {
		t.Error("slot not added to account set")
	}
	if char.PuppetLock.Owner != env.boris.ID {
		t.Error("puppet lock not owned by creator")
	}
}

func TestBeginCreation_ResumesInProgress(t *testing.T) {
	env := newTestEnv(t)

	first, _, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, resumed, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !resumed {
		t.Error("second call should resume, not allocate")
	}
	if second.Ref != first.Ref {
		t.Errorf("resumed slot #%d, want #%d", second.Ref, first.Ref)
	}
}

func TestBeginCreation_QuotaEnforced(t *testing.T) {
	env := newTestEnv(t)
	env.game.Conf.MaxCharacters = 2

	// alice already owns two finished characters.
	_, _, err := env.game.Slots.BeginOrResumeCreation(env.alice)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
}

func TestBeginCreation_PrivilegedBypassesQuota(t *testing.T) {
	env := newTestEnv(t)
	env.game.Conf.MaxCharacters = 0

	if _, _, err := env.game.Slots.BeginOrResumeCreation(env.wanda); err != nil {
		t.Fatalf("privileged account hit quota: %v", err)
	}
}

func TestList_PrunesDanglingRefs(t *testing.T) {
	env := newTestEnv(t)

	// Simulate a stale reference left behind by an interrupted deletion.
	env.alice.Characters = append(env.alice.Characters, gamedb.ObjRef(9999))

	chars := env.game.Slots.List(env.alice)
	if len(chars) != 2 {
		t.Fatalf("List returned %d characters, want 2", len(chars))
	}
	if env.alice.HasCharacter(9999) {
		t.Error("dangling ref not pruned from account set")
	}
}

func TestProposeDelete_ExactMatchOnly(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.game.Slots.ProposeDelete(env.alice, "Alr"); !errors.Is(err, ErrNotFound) {
		t.Errorf("partial name: err = %v, want ErrNotFound", err)
	}
	pd, err := env.game.Slots.ProposeDelete(env.alice, "alrik")
	if err != nil {
		t.Fatalf("case-insensitive exact match: %v", err)
	}
	if pd.Target != env.alrik.Ref {
		t.Errorf("target = #%d, want #%d", pd.Target, env.alrik.Ref)
	}
}

func TestProposeDelete_SkipsInProgress(t *testing.T) {
	env := newTestEnv(t)

	slot, _, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("BeginOrResumeCreation: %v", err)
	}
	if _, err := env.game.Slots.ProposeDelete(env.boris, slot.Name); !errors.Is(err, ErrNotFound) {
		t.Errorf("in-progress slot offered for deletion: err = %v", err)
	}
}

func TestConfirmDelete_OnlyYesMutates(t *testing.T) {
	env := newTestEnv(t)

	pd, err := env.game.Slots.ProposeDelete(env.alice, "Alrik")
	if err != nil {
		t.Fatalf("ProposeDelete: %v", err)
	}

	for _, answer := range []string{"", "no", "YES PLEASE", "y", "ja"} {
		deleted, _, err := env.game.Slots.ConfirmDelete(env.alice, pd, answer, "test")
		if err != nil {
			t.Fatalf("answer %q: %v", answer, err)
		}
		if deleted {
			t.Fatalf("answer %q deleted the character", answer)
		}
		if env.game.DB.Get(env.alrik.Ref) == nil {
			t.Fatalf("answer %q removed the object", answer)
		}
	}

	deleted, _, err := env.game.Slots.ConfirmDelete(env.alice, pd, "yes", "test")
	if err != nil {
		t.Fatalf("ConfirmDelete yes: %v", err)
	}
	if !deleted {
		t.Fatal("yes did not delete")
	}
	if env.game.DB.Get(env.alrik.Ref) != nil {
		t.Error("object still in database after deletion")
	}
	if env.alice.HasCharacter(env.alrik.Ref) {
		t.Error("account still references the deleted slot")
	}
}

func TestConfirmDelete_BootsBoundHolder(t *testing.T) {
	env := newTestEnv(t)
	d := env.newTestDescriptor(t, env.alice)

	if _, err := env.game.Binder.Acquire(d, env.alice, "Alrik"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	pd, err := env.game.Slots.ProposeDelete(env.alice, "Alrik")
	if err != nil {
		t.Fatalf("ProposeDelete: %v", err)
	}
	deleted, booted, err := env.game.Slots.ConfirmDelete(env.alice, pd, "yes", "test")
	if err != nil {
		t.Fatalf("ConfirmDelete: %v", err)
	}
	if !deleted {
		t.Fatal("not deleted")
	}
	if booted != d {
		t.Errorf("booted = %v, want the holding descriptor", booted)
	}
	if d.Puppet != gamedb.Nothing {
		t.Error("holder still bound after deletion")
	}
	if env.game.Binder.Bound(env.alrik.Ref) {
		t.Error("binder still reports the deleted character bound")
	}
}

func TestConfirmDelete_ClearsLastPuppet(t *testing.T) {
	env := newTestEnv(t)
	d := env.newTestDescriptor(t, env.alice)

	if _, err := env.game.Binder.Acquire(d, env.alice, "Alrik"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	env.game.Binder.Release(d)
	if env.alice.LastPuppet != env.alrik.Ref {
		t.Fatalf("LastPuppet = #%d, want #%d", env.alice.LastPuppet, env.alrik.Ref)
	}

	pd, _ := env.game.Slots.ProposeDelete(env.alice, "Alrik")
	if _, _, err := env.game.Slots.ConfirmDelete(env.alice, pd, "yes", "test"); err != nil {
		t.Fatalf("ConfirmDelete: %v", err)
	}
	if env.alice.LastPuppet != gamedb.Nothing {
		t.Errorf("LastPuppet = #%d after deleting it, want Nothing", env.alice.LastPuppet)
	}
}

func TestConfirmDelete_WrongAccount(t *testing.T) {
	env := newTestEnv(t)

	pd, err := env.game.Slots.ProposeDelete(env.alice, "Alrik")
	if err != nil {
		t.Fatalf("ProposeDelete: %v", err)
	}
	deleted, _, err := env.game.Slots.ConfirmDelete(env.boris, pd, "yes", "test")
	if deleted {
		t.Fatal("another account completed the deletion")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestProposeDelete_AmbiguousNoMutation(t *testing.T) {
	env := newTestEnv(t)

	// Two finished characters with the same name.
	newTestCharacter(env.game.DB, env.boris, "Test")
	newTestCharacter(env.game.DB, env.boris, "Test")

	_, err := env.game.Slots.ProposeDelete(env.boris, "test")
	var amb *AmbiguousError
	if !errors.As(err, &amb) {
		t.Fatalf("err = %v, want *AmbiguousError", err)
	}
	if len(amb.Candidates) != 2 {
		t.Errorf("candidates = %d, want 2", len(amb.Candidates))
	}
	if got := len(env.game.Slots.List(env.boris)); got != 2 {
		t.Errorf("character count = %d after ambiguous propose, want 2", got)
	}
}

// The full quota-one lifecycle: create, hit the quota, delete, create again.
func TestSlotLifecycle_QuotaOne(t *testing.T) {
	env := newTestEnv(t)
	env.game.Conf.MaxCharacters = 1
	d := env.newTestDescriptor(t, env.boris)

	char, _, err := env.game.Slots.BeginOrResumeCreation(env.boris)
	if err != nil {
		t.Fatalf("first creation: %v", err)
	}
	env.game.StartChargen(d, env.boris, char)
	runChargen(t, d, chargenScript)
	env.game.Binder.Release(d)

	if _, _, err := env.game.Slots.BeginOrResumeCreation(env.boris); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("second creation err = %v, want ErrQuotaExceeded", err)
	}

	pd, err := env.game.Slots.ProposeDelete(env.boris, char.Name)
	if err != nil {
		t.Fatalf("ProposeDelete: %v", err)
	}
	if deleted, _, err := env.game.Slots.ConfirmDelete(env.boris, pd, "yes", "test"); err != nil || !deleted {
		t.Fatalf("ConfirmDelete = %v, %v", deleted, err)
	}

	if _, _, err := env.game.Slots.BeginOrResumeCreation(env.boris); err != nil {
		t.Fatalf("creation after deletion: %v", err)
	}
}

func TestProposeDelete_LockDeniesNonOwner(t *testing.T) {
	env := newTestEnv(t)

	// Hand boris a character whose delete lock still belongs to alice.
	env.boris.AddCharacter(env.mira.Ref)
	env.mira.DeleteLock = gamedb.Lock{Owner: env.alice.ID, MinLevel: gamedb.LevelDeveloper}

	if _, err := env.game.Slots.ProposeDelete(env.boris, "Mira"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}

	// An admin passes the default delete lock (MinLevel Admin).
	env.mira.DeleteLock = gamedb.Lock{Owner: env.alice.ID, MinLevel: gamedb.LevelAdmin}
	env.wanda.AddCharacter(env.mira.Ref)
	if _, err := env.game.Slots.ProposeDelete(env.wanda, "Mira"); err != nil {
		t.Errorf("admin blocked by delete lock: %v", err)
	}
}
