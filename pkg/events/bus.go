package events

import (
	"sync"

	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
)

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a per-character pub/sub event bus with support for global
// subscribers. Game code emits structured events; each subscriber
// (Descriptor, audit writer, etc.) encodes them per-transport.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[gamedb.ObjRef][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[gamedb.ObjRef][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific character's events.
func (b *Bus) Subscribe(char gamedb.ObjRef, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[char] = append(b.subscribers[char], sub)
}

// Unsubscribe removes a subscriber for a specific character.
func (b *Bus) Unsubscribe(char gamedb.ObjRef, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[char]
	for i, s := range subs {
		if s == sub {
			b.subscribers[char] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[char]) == 0 {
		delete(b.subscribers, char)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the character named in ev.Character and to all
// global subscribers.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.Character]
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// EmitToCharacter sends an event to a specific character (overriding
// ev.Character).
func (b *Bus) EmitToCharacter(char gamedb.ObjRef, ev Event) {
	ev.Character = char
	b.Emit(ev)
}

// EmitToRoom sends an event to every subscribed character in a room,
// walking the room's contents chain.
func (b *Bus) EmitToRoom(db *gamedb.Database, room gamedb.ObjRef, ev Event) {
	b.emitToRoomExcept(db, room, gamedb.Nothing, ev)
}

// EmitToRoomExcept sends an event to every subscribed character in a room
// except one.
func (b *Bus) EmitToRoomExcept(db *gamedb.Database, room, except gamedb.ObjRef, ev Event) {
	b.emitToRoomExcept(db, room, except, ev)
}

func (b *Bus) emitToRoomExcept(db *gamedb.Database, room, except gamedb.ObjRef, ev Event) {
	b.mu.RLock()
	globals := b.global
	b.mu.RUnlock()

	for _, ref := range db.ContentsOf(room) {
		if ref == except {
			continue
		}
		charEv := ev
		charEv.Character = ref
		charEv.Room = room

		b.mu.RLock()
		subs := b.subscribers[ref]
		b.mu.RUnlock()

		for _, s := range subs {
			if !s.Closed() {
				s.Receive(charEv)
			}
		}
	}

	ev.Room = room
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// CharacterSubscribers returns the number of subscribers for a character.
func (b *Bus) CharacterSubscribers(char gamedb.ObjRef) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[char])
}

// Cleanup removes closed subscribers from all lists.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for char, subs := range b.subscribers {
		var active []Subscriber
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.subscribers, char)
		} else {
			b.subscribers[char] = active
		}
	}

	var activeGlobal []Subscriber
	for _, s := range b.global {
		if !s.Closed() {
			activeGlobal = append(activeGlobal, s)
		}
	}
	b.global = activeGlobal
}
