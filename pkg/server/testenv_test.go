package server

import (
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
)

// testEnv holds the shared test infrastructure: a game with one room, two
// accounts, and two finished characters owned by alice.
type testEnv struct {
	game  *Game
	alice *gamedb.Account // regular player, owns Alrik and Mira
	boris *gamedb.Account // regular player, no characters
	wanda *gamedb.Account // admin

	alrik *gamedb.Object
	mira  *gamedb.Object
	room  gamedb.ObjRef
}

// newTestEnv creates a minimal game environment for testing.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := gamedb.NewDatabase()

	room := &gamedb.Object{
		Name:     "Test Square",
		Type:     gamedb.TypeRoom,
		Location: gamedb.Nothing,
		Home:     gamedb.Nothing,
		Contents: gamedb.Nothing,
		Next:     gamedb.Nothing,
	}
	db.AddObject(room)

	conf := DefaultGameConf()
	conf.StartRoom = int(room.Ref)
	conf.DefaultHome = int(room.Ref)

	g := NewGame(db, conf)

	alice := &gamedb.Account{Name: "alice", Level: gamedb.LevelPlayer, LastPuppet: gamedb.Nothing}
	boris := &gamedb.Account{Name: "boris", Level: gamedb.LevelPlayer, LastPuppet: gamedb.Nothing}
	wanda := &gamedb.Account{Name: "wanda", Level: gamedb.LevelAdmin, LastPuppet: gamedb.Nothing}
	db.AddAccount(alice)
	db.AddAccount(boris)
	db.AddAccount(wanda)

	alrik := newTestCharacter(db, alice, "Alrik")
	mira := newTestCharacter(db, alice, "Mira")
	db.AddToContents(room.Ref, alrik.Ref)
	db.AddToContents(room.Ref, mira.Ref)

	return &testEnv{
		game:  g,
		alice: alice,
		boris: boris,
		wanda: wanda,
		alrik: alrik,
		mira:  mira,
		room:  room.Ref,
	}
}

// newTestCharacter creates a finished character owned by acct.
func newTestCharacter(db *gamedb.Database, acct *gamedb.Account, name string) *gamedb.Object {
	char := &gamedb.Object{
		Name:       name,
		Type:       gamedb.TypeCharacter,
		Location:   gamedb.Nothing,
		Home:       gamedb.Nothing,
		Owner:      acct.ID,
		Contents:   gamedb.Nothing,
		Next:       gamedb.Nothing,
		PuppetLock: gamedb.Lock{Owner: acct.ID, MinLevel: gamedb.LevelDeveloper},
		DeleteLock: gamedb.Lock{Owner: acct.ID, MinLevel: gamedb.LevelAdmin},
	}
	db.AddObject(char)
	acct.AddCharacter(char.Ref)
	return char
}

// newTestDescriptor creates a logged-in descriptor whose output is captured
// in a buffer.
func (env *testEnv) newTestDescriptor(t *testing.T, acct *gamedb.Account) *Descriptor {
	t.Helper()
	d := &Descriptor{
		ID:       env.game.Conns.NextID(),
		Conn:     &bufferConn{},
		State:    ConnConnected,
		Account:  acct.ID,
		Puppet:   gamedb.Nothing,
		Addr:     "test",
		ConnTime: time.Now(),
		LastCmd:  time.Now(),
		Retries:  3,
	}
	env.game.Conns.Add(d)
	env.game.Conns.Login(d, acct.ID)
	t.Cleanup(func() { d.Close() })
	return d
}

// bufferConn is a net.Conn whose writes accumulate in a buffer for assertions.
type bufferConn struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *bufferConn) Read(p []byte) (int, error) { return 0, nil }

func (b *bufferConn) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	return len(p), nil
}

func (b *bufferConn) Close() error                       { return nil }
func (b *bufferConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (b *bufferConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (b *bufferConn) SetDeadline(t time.Time) error      { return nil }
func (b *bufferConn) SetReadDeadline(t time.Time) error  { return nil }
func (b *bufferConn) SetWriteDeadline(t time.Time) error { return nil }

// getOutput returns all buffered output and clears the buffer.
func getOutput(d *Descriptor) string {
	b, ok := d.Conn.(*bufferConn)
	if !ok {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return strings.TrimRight(s, "\r\n")
}

// clearOutput discards any buffered output.
func clearOutput(d *Descriptor) {
	getOutput(d)
}

// recordingStore captures the order of persistence calls. Used to assert
// write ordering without a real bbolt file.
type recordingStore struct {
	mu    sync.Mutex
	calls []storeCall
}

type storeCall struct {
	op          string // "object", "delete", "account"
	ref         gamedb.ObjRef
	chargenStep string // snapshot at write time, for objects
	name        string
	location    gamedb.ObjRef
}

func (rs *recordingStore) record(c storeCall) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.calls = append(rs.calls, c)
}

func (rs *recordingStore) PutObject(obj *gamedb.Object) error {
	rs.record(storeCall{op: "object", ref: obj.Ref, chargenStep: obj.ChargenStep, name: obj.Name, location: obj.Location})
	return nil
}

func (rs *recordingStore) PutObjects(objs ...*gamedb.Object) error {
	for _, obj := range objs {
		rs.PutObject(obj)
	}
	return nil
}

func (rs *recordingStore) DeleteObject(ref gamedb.ObjRef) error {
	rs.record(storeCall{op: "delete", ref: ref})
	return nil
}

func (rs *recordingStore) PutAccount(acct *gamedb.Account, oldName string) error {
	rs.record(storeCall{op: "account", name: acct.Name})
	return nil
}

func (rs *recordingStore) objectWrites(ref gamedb.ObjRef) []storeCall {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var out []storeCall
	for _, c := range rs.calls {
		if c.op == "object" && c.ref == ref {
			out = append(out, c)
		}
	}
	return out
}
