package server

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/traumwelt-mud/traumwelt/pkg/events"
	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
)

// TransportType identifies the kind of transport a Descriptor uses.
type TransportType int

const (
	TransportTCP       TransportType = iota // Traditional telnet/TCP
	TransportWebSocket                      // WebSocket (JSON events)
)

// ConnState tracks the state of a connection.
type ConnState int

const (
	ConnLogin     ConnState = iota // Pre-login: awaiting connect/create
	ConnConnected                  // Logged in to an account
)

// Descriptor represents a single client connection. A logged-in descriptor
// belongs to exactly one account and holds at most one puppet binding.
// It implements events.Subscriber so it can receive events from the bus.
type Descriptor struct {
	ID        int
	Conn      net.Conn
	Reader    *bufio.Reader
	State     ConnState
	Account   gamedb.AccountID
	Puppet    gamedb.ObjRef // bound character, Nothing while OOC
	Addr      string
	ConnTime  time.Time
	LastCmd   time.Time
	Retries   int
	CmdCount  int
	BytesSent int
	BytesRecv int
	Transport TransportType

	// PromptFunc, when set, captures the next input line instead of the
	// command dispatcher. Used for delete confirmation and the chargen menu.
	// The function returns true when it is done and should be cleared.
	PromptFunc func(line string) bool

	// SendFunc overrides the default Send behavior (used by WebSocket transport).
	SendFunc func(msg string)
	// ReceiveFunc overrides the default event→text→Send path (WebSocket).
	ReceiveFunc func(ev events.Event)

	mu     sync.Mutex
	closed bool
}

// NewDescriptor wraps a net.Conn into a Descriptor.
func NewDescriptor(id int, conn net.Conn) *Descriptor {
	now := time.Now()
	return &Descriptor{
		ID:       id,
		Conn:     conn,
		Reader:   bufio.NewReaderSize(conn, 4096),
		State:    ConnLogin,
		Account:  gamedb.NoAccount,
		Puppet:   gamedb.Nothing,
		Addr:     conn.RemoteAddr().String(),
		ConnTime: now,
		LastCmd:  now,
		Retries:  3,
	}
}

// Send writes a string to the client connection.
func (d *Descriptor) Send(msg string) {
	if d.SendFunc != nil {
		d.SendFunc(msg)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	// Ensure lines end with \r\n for telnet
	if !strings.HasSuffix(msg, "\n") {
		msg += "\r\n"
	}
	d.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, _ := d.Conn.Write([]byte(msg))
	d.BytesSent += n
}

// SendNoNewline writes a string without appending a newline.
func (d *Descriptor) SendNoNewline(msg string) {
	if d.SendFunc != nil {
		d.SendFunc(msg)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, _ := d.Conn.Write([]byte(msg))
	d.BytesSent += n
}

// Close shuts down the connection.
func (d *Descriptor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		d.Conn.Close()
	}
}

// IsClosed returns whether the connection has been closed.
func (d *Descriptor) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Receive implements events.Subscriber.
func (d *Descriptor) Receive(ev events.Event) {
	if d.ReceiveFunc != nil {
		d.ReceiveFunc(ev)
		return
	}
	if ev.Text != "" {
		d.Send(ev.Text)
	}
}

// Closed implements events.Subscriber.
func (d *Descriptor) Closed() bool {
	return d.IsClosed()
}

// Compile-time check that Descriptor implements events.Subscriber.
var _ events.Subscriber = (*Descriptor)(nil)

// ConnManager tracks all active connections.
type ConnManager struct {
	mu          sync.RWMutex
	descriptors map[int]*Descriptor
	nextID      int
	byAccount   map[gamedb.AccountID][]*Descriptor // account -> sessions (multi-login)
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		descriptors: make(map[int]*Descriptor),
		byAccount:   make(map[gamedb.AccountID][]*Descriptor),
		nextID:      1,
	}
}

// Add registers a new descriptor.
func (cm *ConnManager) Add(d *Descriptor) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.descriptors[d.ID] = d
}

// Remove unregisters a descriptor.
func (cm *ConnManager) Remove(d *Descriptor) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.descriptors, d.ID)
	if d.Account != gamedb.NoAccount {
		descs := cm.byAccount[d.Account]
		for i, dd := range descs {
			if dd.ID == d.ID {
				cm.byAccount[d.Account] = append(descs[:i], descs[i+1:]...)
				break
			}
		}
		if len(cm.byAccount[d.Account]) == 0 {
			delete(cm.byAccount, d.Account)
		}
	}
}

// Login associates a descriptor with an account.
func (cm *ConnManager) Login(d *Descriptor, acct gamedb.AccountID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	d.State = ConnConnected
	d.Account = acct
	cm.byAccount[acct] = append(cm.byAccount[acct], d)
}

// NextID returns the next descriptor ID.
func (cm *ConnManager) NextID() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	id := cm.nextID
	cm.nextID++
	return id
}

// GetByAccount returns all descriptors for a given account.
func (cm *ConnManager) GetByAccount(acct gamedb.AccountID) []*Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byAccount[acct]
}

// IsConnected returns true if the account has at least one active session.
func (cm *ConnManager) IsConnected(acct gamedb.AccountID) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byAccount[acct]) > 0
}

// ConnectedAccounts returns all currently connected account ids.
func (cm *ConnManager) ConnectedAccounts() []gamedb.AccountID {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	accts := make([]gamedb.AccountID, 0, len(cm.byAccount))
	for a := range cm.byAccount {
		accts = append(accts, a)
	}
	return accts
}

// AllDescriptors returns a snapshot of all active descriptors.
func (cm *ConnManager) AllDescriptors() []*Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	descs := make([]*Descriptor, 0, len(cm.descriptors))
	for _, d := range cm.descriptors {
		descs = append(descs, d)
	}
	return descs
}

// Count returns the number of active connections.
func (cm *ConnManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.descriptors)
}

// CountByTransport returns the number of active connections per transport.
func (cm *ConnManager) CountByTransport() (tcp, ws int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, d := range cm.descriptors {
		if d.Transport == TransportWebSocket {
			ws++
		} else {
			tcp++
		}
	}
	return tcp, ws
}

// SendToAccount sends a message to all sessions of an account.
func (cm *ConnManager) SendToAccount(acct gamedb.AccountID, msg string) {
	cm.mu.RLock()
	descs := cm.byAccount[acct]
	cm.mu.RUnlock()
	for _, d := range descs {
		d.Send(msg)
	}
}
