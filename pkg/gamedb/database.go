package gamedb

import (
	"strings"
	"sync"
	"time"
)

// Database is the in-memory object and account store. Persistence is
// write-through via the server's Store; the maps here are the live state.
type Database struct {
	mu sync.RWMutex

	Objects  map[ObjRef]*Object
	Accounts map[AccountID]*Account

	accountsByName map[string]AccountID

	NextRef     ObjRef
	NextAccount AccountID
}

// NewDatabase creates an empty database.
func NewDatabase() *Database {
	return &Database{
		Objects:        make(map[ObjRef]*Object),
		Accounts:       make(map[AccountID]*Account),
		accountsByName: make(map[string]AccountID),
		NextRef:        1,
		NextAccount:    1,
	}
}

// Get returns the object for ref, or nil.
func (db *Database) Get(ref ObjRef) *Object {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.Objects[ref]
}

// GetAccount returns the account for id, or nil.
func (db *Database) GetAccount(id AccountID) *Account {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.Accounts[id]
}

// LookupAccount finds an account by name (case-insensitive).
func (db *Database) LookupAccount(name string) *Account {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if id, ok := db.accountsByName[strings.ToLower(name)]; ok {
		return db.Accounts[id]
	}
	return nil
}

// AllocRef reserves and returns the next object reference.
func (db *Database) AllocRef() ObjRef {
	db.mu.Lock()
	defer db.mu.Unlock()
	ref := db.NextRef
	db.NextRef++
	return ref
}

// AddObject inserts an object, allocating a ref if the object has none.
func (db *Database) AddObject(obj *Object) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if obj.Ref == 0 || obj.Ref == Nothing {
		obj.Ref = db.NextRef
		db.NextRef++
	} else if obj.Ref >= db.NextRef {
		db.NextRef = obj.Ref + 1
	}
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now()
	}
	db.Objects[obj.Ref] = obj
}

// RemoveObject deletes an object from the live maps.
func (db *Database) RemoveObject(ref ObjRef) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.Objects, ref)
}

// AddAccount inserts an account, allocating an id if the account has none,
// and indexes it by lowercase name.
func (db *Database) AddAccount(acct *Account) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if acct.ID == NoAccount {
		acct.ID = db.NextAccount
		db.NextAccount++
	} else if acct.ID >= db.NextAccount {
		db.NextAccount = acct.ID + 1
	}
	if acct.LastPuppet == 0 {
		acct.LastPuppet = Nothing
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now()
	}
	db.Accounts[acct.ID] = acct
	db.accountsByName[strings.ToLower(acct.Name)] = acct.ID
}

// RemoveAccount deletes an account and its name index entry.
func (db *Database) RemoveAccount(id AccountID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if acct, ok := db.Accounts[id]; ok {
		delete(db.accountsByName, strings.ToLower(acct.Name))
		delete(db.Accounts, id)
	}
}

// AddToContents links obj into holder's contents chain and updates locations.
func (db *Database) AddToContents(holder, obj ObjRef) {
	db.mu.Lock()
	defer db.mu.Unlock()
	h, ok := db.Objects[holder]
	o, ok2 := db.Objects[obj]
	if !ok || !ok2 {
		return
	}
	o.Location = holder
	o.Next = h.Contents
	h.Contents = obj
}

// RemoveFromContents unlinks obj from holder's contents chain.
func (db *Database) RemoveFromContents(holder, obj ObjRef) {
	db.mu.Lock()
	defer db.mu.Unlock()
	h, ok := db.Objects[holder]
	o, ok2 := db.Objects[obj]
	if !ok || !ok2 {
		return
	}
	if h.Contents == obj {
		h.Contents = o.Next
	} else {
		prev := h.Contents
		for prev != Nothing {
			p, ok := db.Objects[prev]
			if !ok {
				break
			}
			if p.Next == obj {
				p.Next = o.Next
				break
			}
			prev = p.Next
		}
	}
	o.Next = Nothing
	o.Location = Nothing
}

// ContentsOf returns the refs in holder's contents chain, in chain order.
// The walk is cycle-guarded.
func (db *Database) ContentsOf(holder ObjRef) []ObjRef {
	db.mu.RLock()
	defer db.mu.RUnlock()
	h, ok := db.Objects[holder]
	if !ok {
		return nil
	}
	var refs []ObjRef
	seen := make(map[ObjRef]bool)
	next := h.Contents
	for next != Nothing && !seen[next] {
		seen[next] = true
		refs = append(refs, next)
		o, ok := db.Objects[next]
		if !ok {
			break
		}
		next = o.Next
	}
	return refs
}

// SearchContents finds objects in holder's contents chain whose name matches
// name case-insensitively.
func (db *Database) SearchContents(holder ObjRef, name string) []*Object {
	var matches []*Object
	for _, ref := range db.ContentsOf(holder) {
		if obj := db.Get(ref); obj != nil && !obj.Going && strings.EqualFold(obj.Name, name) {
			matches = append(matches, obj)
		}
	}
	return matches
}

// SearchGlobal finds objects anywhere in the database whose name matches
// name case-insensitively, excluding going objects.
func (db *Database) SearchGlobal(name string) []*Object {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var matches []*Object
	for _, obj := range db.Objects {
		if !obj.Going && strings.EqualFold(obj.Name, name) {
			matches = append(matches, obj)
		}
	}
	return matches
}
