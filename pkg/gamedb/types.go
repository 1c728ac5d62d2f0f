package gamedb

import "time"

// ObjRef is the fundamental object reference type.
type ObjRef int

const (
	Nothing   ObjRef = -1
	Ambiguous ObjRef = -2
)

// AccountID identifies a player account.
type AccountID int

// NoAccount is the zero-value sentinel for "no account".
const NoAccount AccountID = 0

// ObjectType represents the type of a game object.
type ObjectType int

const (
	TypeRoom      ObjectType = 0
	TypeThing     ObjectType = 1
	TypeExit      ObjectType = 2
	TypeCharacter ObjectType = 3
)

func (t ObjectType) String() string {
	switch t {
	case TypeRoom:
		return "ROOM"
	case TypeThing:
		return "THING"
	case TypeExit:
		return "EXIT"
	case TypeCharacter:
		return "CHARACTER"
	default:
		return "UNKNOWN"
	}
}

// PermLevel is an account's permission level. Higher values include all
// privileges of lower ones.
type PermLevel int

const (
	LevelPlayer PermLevel = iota
	LevelBuilder
	LevelAdmin
	LevelDeveloper
)

func (l PermLevel) String() string {
	switch l {
	case LevelPlayer:
		return "Player"
	case LevelBuilder:
		return "Builder"
	case LevelAdmin:
		return "Admin"
	case LevelDeveloper:
		return "Developer"
	default:
		return "Unknown"
	}
}

// ParseLevel maps a level name to a PermLevel (case-sensitive, as stored in config).
func ParseLevel(s string) (PermLevel, bool) {
	switch s {
	case "Player":
		return LevelPlayer, true
	case "Builder":
		return LevelBuilder, true
	case "Admin":
		return LevelAdmin, true
	case "Developer":
		return LevelDeveloper, true
	}
	return LevelPlayer, false
}

// Stats holds a character's attribute block, filled in during chargen.
type Stats struct {
	Strength     int
	Intelligence int
	Wisdom       int
	Stamina      int
	Vitality     int
	Focus        int
}

// Total returns the sum of all stat points.
func (s Stats) Total() int {
	return s.Strength + s.Intelligence + s.Wisdom + s.Stamina + s.Vitality + s.Focus
}

// Lock gates an action on an object. The owning account always passes;
// any account at or above MinLevel also passes.
type Lock struct {
	Owner    AccountID
	MinLevel PermLevel
}

// Check reports whether the given account/level combination passes the lock.
func (l Lock) Check(acct AccountID, level PermLevel) bool {
	if l.Owner != NoAccount && l.Owner == acct {
		return true
	}
	return level >= l.MinLevel
}

// Object is a persistent game entity: a room, a thing, an exit, or a
// playable character. Characters carry the chargen cursor and locks.
type Object struct {
	Ref      ObjRef
	Name     string
	Type     ObjectType
	Location ObjRef // Nothing while in chargen or in storage
	Home     ObjRef
	Owner    AccountID // owning account for characters, NoAccount otherwise
	Contents ObjRef    // head of contents chain
	Next     ObjRef    // next sibling in the holder's contents chain

	// ChargenStep names the next creation menu node. Empty means creation
	// is finished and the character is fully playable.
	ChargenStep string

	Stats Stats

	PuppetLock Lock
	DeleteLock Lock

	// GetRefusal, when set, replaces the default "You can't take that."
	GetRefusal string

	// Going marks an object mid-deletion. A going object is never offered
	// for binding or listing.
	Going bool

	CreatedAt time.Time
}

// IsCharacter reports whether the object is a playable character.
func (o *Object) IsCharacter() bool {
	return o.Type == TypeCharacter
}

// InProgress reports whether the character still has chargen steps pending.
func (o *Object) InProgress() bool {
	return o.ChargenStep != ""
}

// Account is a player identity. It owns a set of playable characters and
// remembers the last character it puppeted.
type Account struct {
	ID           AccountID
	Name         string
	PasswordHash []byte // bcrypt
	Level        PermLevel

	// Characters is the owned slot set. Mutate only through the accessor
	// methods so the quota and membership invariants hold. The server's slot
	// manager serializes all access; concurrent sessions of one account must
	// not touch this field directly.
	Characters []ObjRef

	// LastPuppet is a weak reference: lookup only, never ownership. It may
	// point at a destroyed object and must be validated before use. Guarded
	// by the slot manager, like Characters.
	LastPuppet ObjRef

	CreatedAt time.Time
}

// Privileged reports whether the account is exempt from the character quota
// and may use the extended puppet-target search tiers.
func (a *Account) Privileged() bool {
	return a.Level >= LevelBuilder
}

// HasCharacter reports whether ref is in the account's slot set.
func (a *Account) HasCharacter(ref ObjRef) bool {
	for _, c := range a.Characters {
		if c == ref {
			return true
		}
	}
	return false
}

// AddCharacter appends ref to the slot set if not already present.
func (a *Account) AddCharacter(ref ObjRef) {
	if !a.HasCharacter(ref) {
		a.Characters = append(a.Characters, ref)
	}
}

// RemoveCharacter removes ref from the slot set. If the removed character
// was the last puppet the weak reference is cleared too.
func (a *Account) RemoveCharacter(ref ObjRef) {
	for i, c := range a.Characters {
		if c == ref {
			a.Characters = append(a.Characters[:i], a.Characters[i+1:]...)
			break
		}
	}
	if a.LastPuppet == ref {
		a.LastPuppet = Nothing
	}
}
