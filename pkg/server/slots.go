package server

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
)

// SlotManager owns the lifecycle of playable-character slots: creation and
// resume, two-phase deletion, and listing. Slot mutations are serialized by
// the manager mutex; the deletion critical section additionally runs through
// the binder so a slot mid-deletion can never be bound.
type SlotManager struct {
	g  *Game
	mu sync.Mutex
}

// NewSlotManager creates a slot manager for the game.
func NewSlotManager(g *Game) *SlotManager {
	return &SlotManager{g: g}
}

// PendingDeletion is the token of a proposed deletion awaiting confirmation.
// Only ConfirmDelete with the literal answer "yes" mutates anything.
type PendingDeletion struct {
	Token     string
	Account   gamedb.AccountID
	Target    gamedb.ObjRef
	Name      string
	CreatedAt time.Time
}

// placeholderName generates a random display-name token for a slot whose
// real name is chosen later in chargen. Uniqueness by collision probability;
// this is not a security token.
func placeholderName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// BeginOrResumeCreation returns the account's in-progress slot if one
// exists, otherwise allocates a fresh slot at the first chargen step.
// The returned bool is true when an existing slot was resumed.
func (s *SlotManager) BeginOrResumeCreation(acct *gamedb.Account) (*gamedb.Object, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Only one slot may be in progress at a time; resume it if present.
	for _, ref := range acct.Characters {
		obj := s.g.DB.Get(ref)
		if obj != nil && !obj.Going && obj.InProgress() {
			return obj, true, nil
		}
	}

	if !acct.Privileged() {
		owned := 0
		for _, ref := range acct.Characters {
			if obj := s.g.DB.Get(ref); obj != nil && !obj.Going {
				owned++
			}
		}
		if owned >= s.g.Conf.MaxCharacters {
			return nil, false, ErrQuotaExceeded
		}
	}

	char := &gamedb.Object{
		Name:        placeholderName(),
		Type:        gamedb.TypeCharacter,
		Location:    gamedb.Nothing,
		Home:        gamedb.ObjRef(s.g.Conf.DefaultHome),
		Owner:       acct.ID,
		Contents:    gamedb.Nothing,
		Next:        gamedb.Nothing,
		ChargenStep: ChargenStart,
		PuppetLock:  gamedb.Lock{Owner: acct.ID, MinLevel: gamedb.LevelDeveloper},
		DeleteLock:  gamedb.Lock{Owner: acct.ID, MinLevel: gamedb.LevelAdmin},
		CreatedAt:   time.Now(),
	}
	s.g.DB.AddObject(char)
	acct.AddCharacter(char.Ref)

	s.g.PersistObjects(char)
	s.g.PersistAccount(acct)
	return char, false, nil
}

// CharacterRefs returns a snapshot of the account's slot refs. All reads of
// the slot set outside this package go through here; the manager mutex is the
// single authority for Characters and LastPuppet, so concurrent sessions of
// one account never race on them.
func (s *SlotManager) CharacterRefs(acct *gamedb.Account) []gamedb.ObjRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gamedb.ObjRef(nil), acct.Characters...)
}

// LastPuppet returns the account's last-puppet ref under the manager mutex.
func (s *SlotManager) LastPuppet(acct *gamedb.Account) gamedb.ObjRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return acct.LastPuppet
}

// SetLastPuppet records and persists the account's last puppet.
func (s *SlotManager) SetLastPuppet(acct *gamedb.Account, ref gamedb.ObjRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct.LastPuppet = ref
	s.g.PersistAccount(acct)
}

// List returns the account's characters in creation order, pruning any
// dangling references to objects that no longer exist.
func (s *SlotManager) List(acct *gamedb.Account) []*gamedb.Object {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chars []*gamedb.Object
	var kept []gamedb.ObjRef
	pruned := false
	for _, ref := range acct.Characters {
		obj := s.g.DB.Get(ref)
		if obj == nil || obj.Going {
			pruned = true
			continue
		}
		kept = append(kept, ref)
		chars = append(chars, obj)
	}
	if pruned {
		acct.Characters = kept
		s.g.PersistAccount(acct)
	}
	return chars
}

// ProposeDelete resolves name against the account's slot set and returns a
// deletion token. Resolution is case-insensitive exact match only, so a
// partial selector can never delete the wrong character. In-progress slots
// belong to the chargen flow and are not offered here.
func (s *SlotManager) ProposeDelete(acct *gamedb.Account, name string) (*PendingDeletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []*gamedb.Object
	for _, ref := range acct.Characters {
		obj := s.g.DB.Get(ref)
		if obj == nil || obj.Going || obj.InProgress() {
			continue
		}
		if strings.EqualFold(obj.Name, name) {
			matches = append(matches, obj)
		}
	}

	switch {
	case len(matches) == 0:
		return nil, ErrNotFound
	case len(matches) > 1:
		return nil, &AmbiguousError{Selector: name, Candidates: matches}
	}

	target := matches[0]
	if !Can(acct, ActionDelete, target) {
		return nil, ErrPermissionDenied
	}

	return &PendingDeletion{
		Token:     uuid.NewString(),
		Account:   acct.ID,
		Target:    target.Ref,
		Name:      target.Name,
		CreatedAt: time.Now(),
	}, nil
}

// ConfirmDelete completes or aborts a proposed deletion. Any answer other
// than "yes" aborts with no mutation. On confirmation the slot's binding is
// released and the slot marked going in one atomic step with respect to
// concurrent acquires, then it is removed from the account set and
// destroyed. Returns whether the slot was deleted and the descriptor that
// was booted from it, if any.
func (s *SlotManager) ConfirmDelete(acct *gamedb.Account, pd *PendingDeletion, answer, origin string) (bool, *Descriptor, error) {
	if pd == nil || pd.Account != acct.ID {
		return false, nil, ErrNotFound
	}
	if !strings.EqualFold(strings.TrimSpace(answer), "yes") {
		return false, nil, nil
	}

	target := s.g.DB.Get(pd.Target)
	if target == nil || target.Going {
		return false, nil, ErrNotFound
	}
	// Re-check the lock at confirmation time; levels may have changed.
	if !Can(acct, ActionDelete, target) {
		return false, nil, ErrPermissionDenied
	}

	// From here on no acquire can bind the slot: beginDestroy releases any
	// holder and marks the object going under the binder mutex.
	booted := s.g.Binder.beginDestroy(target)

	s.mu.Lock()
	acct.RemoveCharacter(target.Ref)
	s.g.PersistAccount(acct)
	s.mu.Unlock()

	if target.Location != gamedb.Nothing {
		s.g.DB.RemoveFromContents(target.Location, target.Ref)
	}
	if s.g.Store != nil {
		if err := s.g.Store.DeleteObject(target.Ref); err != nil {
			// The live state already dropped the slot; report but continue.
			s.g.auditDeletion(acct, target.Ref, target.Name, origin)
			s.g.DB.RemoveObject(target.Ref)
			return true, booted, err
		}
	}
	s.g.DB.RemoveObject(target.Ref)

	s.g.auditDeletion(acct, target.Ref, target.Name, origin)
	return true, booted, nil
}
