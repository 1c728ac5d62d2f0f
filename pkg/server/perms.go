package server

import "github.com/traumwelt-mud/traumwelt/pkg/gamedb"

// Lockable actions.
const (
	ActionPuppet = "puppet"
	ActionDelete = "delete"
)

// Can is the capability query for account actions on objects: an explicit
// predicate instead of ambient lock strings. Unknown actions are denied.
func Can(acct *gamedb.Account, action string, obj *gamedb.Object) bool {
	if acct == nil || obj == nil {
		return false
	}
	switch action {
	case ActionPuppet:
		return obj.PuppetLock.Check(acct.ID, acct.Level)
	case ActionDelete:
		return obj.DeleteLock.Check(acct.ID, acct.Level)
	}
	return false
}

// Developer returns true if the account holds the Developer level.
func Developer(acct *gamedb.Account) bool {
	return acct != nil && acct.Level >= gamedb.LevelDeveloper
}

// Admin returns true if the account holds Admin or above.
func Admin(acct *gamedb.Account) bool {
	return acct != nil && acct.Level >= gamedb.LevelAdmin
}

// WizWho returns true if the account may see the extended WHO columns.
func WizWho(acct *gamedb.Account) bool {
	return Admin(acct)
}
