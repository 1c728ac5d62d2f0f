package server

import (
	"fmt"
	"log"
	"strings"

	"github.com/traumwelt-mud/traumwelt/pkg/events"
	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
	"github.com/traumwelt-mud/traumwelt/pkg/seclog"
)

// Store is the persistence surface the game writes through. *boltstore.Store
// satisfies it; tests substitute a recording store.
type Store interface {
	PutObject(obj *gamedb.Object) error
	PutObjects(objs ...*gamedb.Object) error
	DeleteObject(ref gamedb.ObjRef) error
	PutAccount(acct *gamedb.Account, oldName string) error
}

// Game holds all live server state.
type Game struct {
	DB       *gamedb.Database
	Store    Store // nil = in-memory only
	Conns    *ConnManager
	Bus      *events.Bus
	Binder   *Binder
	Slots    *SlotManager
	Commands map[string]*Command
	Conf     *GameConf
	Texts    *TextFiles
	Audit    *seclog.Log // nil = log lines only
	Metrics  *Metrics    // nil = disabled
}

// NewGame creates a game over the given database.
func NewGame(db *gamedb.Database, conf *GameConf) *Game {
	if conf == nil {
		conf = DefaultGameConf()
	}
	g := &Game{
		DB:       db,
		Conns:    NewConnManager(),
		Bus:      events.NewBus(),
		Commands: InitCommands(),
		Conf:     conf,
	}
	g.Binder = NewBinder(g)
	g.Slots = NewSlotManager(g)
	return g
}

// PersistObjects writes the given objects through to the store.
func (g *Game) PersistObjects(objs ...*gamedb.Object) {
	if g.Store == nil {
		return
	}
	if err := g.Store.PutObjects(objs...); err != nil {
		log.Printf("WARNING: persist objects: %v", err)
	}
}

// PersistAccount writes the account through to the store.
func (g *Game) PersistAccount(acct *gamedb.Account) {
	if g.Store == nil {
		return
	}
	if err := g.Store.PutAccount(acct, ""); err != nil {
		log.Printf("WARNING: persist account %s: %v", acct.Name, err)
	}
}

// CharacterName returns the display name for a ref, or "None".
func (g *Game) CharacterName(ref gamedb.ObjRef) string {
	if obj := g.DB.Get(ref); obj != nil {
		return obj.Name
	}
	return "None"
}

// AccountName returns the display name for an account id.
func (g *Game) AccountName(id gamedb.AccountID) string {
	if acct := g.DB.GetAccount(id); acct != nil {
		return acct.Name
	}
	return "None"
}

// ShowRoom sends a room description to the descriptor.
func (g *Game) ShowRoom(d *Descriptor, room gamedb.ObjRef) {
	roomObj := g.DB.Get(room)
	if roomObj == nil {
		d.Send("You are nowhere.")
		return
	}
	var sb strings.Builder
	sb.WriteString(roomObj.Name)
	contents := g.DB.ContentsOf(room)
	var here []string
	for _, ref := range contents {
		if ref == d.Puppet {
			continue
		}
		if obj := g.DB.Get(ref); obj != nil && !obj.Going {
			here = append(here, obj.Name)
		}
	}
	if len(here) > 0 {
		sb.WriteString("\r\nYou see: " + strings.Join(here, ", "))
	}
	d.Send(sb.String())
}

// AnnounceToRoom emits a text event to every bound character in a room
// except one.
func (g *Game) AnnounceToRoom(room, except gamedb.ObjRef, text string) {
	g.Bus.EmitToRoomExcept(g.DB, room, except, events.Event{
		Type: events.EvText,
		Text: text,
	})
}

// DisconnectSession releases the descriptor's puppet binding and announces
// the departure. Called on both explicit quit and dropped connections.
func (g *Game) DisconnectSession(d *Descriptor) {
	if d.Puppet != gamedb.Nothing {
		char := g.DB.Get(d.Puppet)
		g.Binder.Release(d)
		if char != nil && char.Location != gamedb.Nothing {
			g.AnnounceToRoom(char.Location, char.Ref, fmt.Sprintf("%s has disconnected.", char.Name))
		}
	}
}

// auditPuppet writes a puppet acquisition audit entry.
func (g *Game) auditPuppet(outcome string, acct *gamedb.Account, ref gamedb.ObjRef, name, origin, detail string) {
	if g.Metrics != nil {
		g.Metrics.PuppetAttempt(outcome)
	}
	if g.Audit != nil {
		g.Audit.PuppetAttempt(outcome, acct, ref, name, origin, detail)
		return
	}
	actorName := "?"
	if acct != nil {
		actorName = acct.Name
	}
	log.Printf("SEC %s/%s: actor=%s target=%s(#%d) origin=%s %s",
		seclog.EventPuppet, outcome, actorName, name, ref, origin, detail)
}

// auditDeletion writes a character deletion audit entry.
func (g *Game) auditDeletion(acct *gamedb.Account, ref gamedb.ObjRef, name, origin string) {
	if g.Audit != nil {
		g.Audit.CharacterDeleted(acct, ref, name, origin)
		return
	}
	actorName := "?"
	if acct != nil {
		actorName = acct.Name
	}
	log.Printf("SEC %s/%s: actor=%s target=%s(#%d) origin=%s",
		seclog.EventDelete, seclog.OutcomeSuccess, actorName, name, ref, origin)
}
