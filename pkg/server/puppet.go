package server

import (
	"fmt"
	"strings"
	"sync"

	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
	"github.com/traumwelt-mud/traumwelt/pkg/seclog"
)

// Binder mediates exclusive control of characters by live connections.
// The binding table is the single authority: every acquire and release is an
// atomic check-and-set under the binder mutex, and deletion runs its critical
// section under the same mutex so a character mid-deletion can never be bound.
//
// Per-character state machine: Unbound -> Bound(d) on acquire; Bound(d) ->
// Unbound on release or disconnect; re-acquire by the holder is a no-op;
// acquire by any other descriptor is rejected, never transferred.
type Binder struct {
	g        *Game
	mu       sync.Mutex
	bindings map[gamedb.ObjRef]*Descriptor
}

// NewBinder creates a binder for the game.
func NewBinder(g *Game) *Binder {
	return &Binder{
		g:        g,
		bindings: make(map[gamedb.ObjRef]*Descriptor),
	}
}

// Holder returns the descriptor currently bound to ref, or nil.
func (b *Binder) Holder(ref gamedb.ObjRef) *Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bindings[ref]
}

// Bound reports whether ref has a live binding.
func (b *Binder) Bound(ref gamedb.ObjRef) bool {
	return b.Holder(ref) != nil
}

// Acquire resolves selector to exactly one character and binds d to it.
// Resolution tiers, each tried only when the previous yields zero candidates:
//
//	(a) the account's own finished characters (exact name, case-insensitive)
//	(b) privileged accounts with a current puppet: the puppet's location
//	(c) privileged accounts: global search
//
// An empty selector falls back to the account's last puppet.
func (b *Binder) Acquire(d *Descriptor, acct *gamedb.Account, selector string) (*gamedb.Object, error) {
	selector = strings.TrimSpace(selector)

	var candidates []*gamedb.Object

	if selector == "" {
		last := b.g.DB.Get(b.g.Slots.LastPuppet(acct))
		if last == nil || last.Going {
			return nil, ErrNoSelector
		}
		candidates = []*gamedb.Object{last}
	} else {
		candidates = b.resolve(d, acct, selector)
	}

	switch len(candidates) {
	case 0:
		b.g.auditPuppet(seclog.OutcomeFailure, acct, gamedb.Nothing, selector, d.Addr, "no match")
		return nil, ErrNotFound
	case 1:
		// fall through to binding
	default:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = fmt.Sprintf("%s(#%d)", c.Name, c.Ref)
		}
		b.g.auditPuppet(seclog.OutcomeFailure, acct, gamedb.Nothing, selector, d.Addr,
			"ambiguous: "+strings.Join(names, ", "))
		return nil, &AmbiguousError{Selector: selector, Candidates: candidates}
	}

	target := candidates[0]
	if !Can(acct, ActionPuppet, target) {
		b.g.auditPuppet(seclog.OutcomeFailure, acct, target.Ref, target.Name, d.Addr, "puppet lock")
		return nil, ErrPermissionDenied
	}

	if err := b.bind(d, acct, target); err != nil {
		b.g.auditPuppet(seclog.OutcomeFailure, acct, target.Ref, target.Name, d.Addr, err.Error())
		return nil, err
	}

	b.g.auditPuppet(seclog.OutcomeSuccess, acct, target.Ref, target.Name, d.Addr, "")
	return target, nil
}

// resolve walks the search tiers for a non-empty selector.
func (b *Binder) resolve(d *Descriptor, acct *gamedb.Account, selector string) []*gamedb.Object {
	// Tier a: the account's own finished characters. In-progress slots are
	// never offered here; they belong to the chargen flow. The slot set is
	// read through the slot manager so concurrent creation cannot race it.
	var candidates []*gamedb.Object
	for _, ref := range b.g.Slots.CharacterRefs(acct) {
		obj := b.g.DB.Get(ref)
		if obj == nil || obj.Going || obj.InProgress() {
			continue
		}
		if strings.EqualFold(obj.Name, selector) {
			candidates = append(candidates, obj)
		}
	}
	if len(candidates) > 0 || !acct.Privileged() {
		return candidates
	}

	// Tier b: objects near the current puppet, puppet-lock gated. Slots
	// mid-chargen stay excluded even once they carry their chosen name.
	if d.Puppet != gamedb.Nothing {
		if cur := b.g.DB.Get(d.Puppet); cur != nil && cur.Location != gamedb.Nothing {
			for _, obj := range b.g.DB.SearchContents(cur.Location, selector) {
				if obj.Ref != d.Puppet && !obj.InProgress() && Can(acct, ActionPuppet, obj) {
					candidates = append(candidates, obj)
				}
			}
		}
	}
	if len(candidates) > 0 {
		return candidates
	}

	// Tier c: global search, puppet-lock gated, in-progress slots excluded.
	for _, obj := range b.g.DB.SearchGlobal(selector) {
		if !obj.InProgress() && Can(acct, ActionPuppet, obj) {
			candidates = append(candidates, obj)
		}
	}
	return candidates
}

// bind installs the binding under the mutex. This is the authoritative
// exclusivity check: two racing binds on the same character cannot both
// succeed.
func (b *Binder) bind(d *Descriptor, acct *gamedb.Account, target *gamedb.Object) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if target.Going || target.InProgress() {
		return ErrNotFound
	}

	if holder := b.bindings[target.Ref]; holder != nil {
		if holder == d {
			// Re-acquire by the current holder is a no-op success.
			return nil
		}
		return ErrAlreadyControlled
	}

	// Release the descriptor's previous binding first.
	b.unbindLocked(d)

	b.bindings[target.Ref] = d
	d.Puppet = target.Ref
	b.g.Bus.Subscribe(target.Ref, d)

	b.g.Slots.SetLastPuppet(acct, target.Ref)
	return nil
}

// Release drops the descriptor's current binding, if any.
func (b *Binder) Release(d *Descriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unbindLocked(d)
}

// unbindLocked removes d's binding. Caller holds b.mu.
func (b *Binder) unbindLocked(d *Descriptor) {
	if d.Puppet == gamedb.Nothing {
		return
	}
	ref := d.Puppet
	if b.bindings[ref] == d {
		delete(b.bindings, ref)
	}
	d.Puppet = gamedb.Nothing
	b.g.Bus.Unsubscribe(ref, d)
}

// beginDestroy atomically releases any binding on the character and marks it
// going, so no concurrent acquire can bind it from this point on. Returns
// the previous holder (if any) so the caller can notify it.
func (b *Binder) beginDestroy(target *gamedb.Object) *Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	holder := b.bindings[target.Ref]
	if holder != nil {
		b.unbindLocked(holder)
	}
	target.Going = true
	return holder
}

// BoundCount returns the number of live bindings (for stats).
func (b *Binder) BoundCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bindings)
}
