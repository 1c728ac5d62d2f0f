// Package menu implements a small node-based menu flow driver. A menu owns
// the input of one connection until it finishes; each node shows a prompt
// and maps the next input line to a follow-up node.
package menu

import "strings"

// End is the pseudo-node key a handler returns to finish the flow.
const End = "@end"

// Node is one step of a menu flow.
type Node struct {
	Key string

	// Prompt returns the text shown when the node is entered.
	Prompt func(m *Menu) string

	// Handle consumes one input line and returns the key of the next node,
	// the node's own key to repeat, or End to finish the flow.
	Handle func(m *Menu, input string) string
}

// Menu drives a set of nodes for one connection.
type Menu struct {
	nodes   map[string]*Node
	current string
	done    bool

	// Send delivers prompt text to the connection.
	Send func(msg string)

	// OnTransition is called after the current node changes and before the
	// new node's prompt is shown. to is End when the flow finishes. Used to
	// persist the cursor durably on every step.
	OnTransition func(from, to string)

	// OnFinish is called once after the End transition.
	OnFinish func()

	// Values is scratch state shared between node handlers.
	Values map[string]any
}

// New creates a menu over the given nodes.
func New(nodes []*Node, send func(string)) *Menu {
	m := &Menu{
		nodes:  make(map[string]*Node, len(nodes)),
		Send:   send,
		Values: make(map[string]any),
	}
	for _, n := range nodes {
		m.nodes[n.Key] = n
	}
	return m
}

// Start enters the flow at startKey and shows its prompt.
func (m *Menu) Start(startKey string) {
	n, ok := m.nodes[startKey]
	if !ok {
		m.done = true
		return
	}
	m.current = startKey
	if n.Prompt != nil {
		m.Send(n.Prompt(m))
	}
}

// Current returns the key of the active node.
func (m *Menu) Current() string {
	return m.current
}

// Done reports whether the flow has finished.
func (m *Menu) Done() bool {
	return m.done
}

// Input feeds one line into the active node and performs the transition
// it requests.
func (m *Menu) Input(line string) {
	if m.done {
		return
	}
	n, ok := m.nodes[m.current]
	if !ok || n.Handle == nil {
		m.done = true
		return
	}

	next := n.Handle(m, strings.TrimSpace(line))
	if next == "" || next == m.current {
		// Stay on the node; re-show the prompt.
		if n.Prompt != nil {
			m.Send(n.Prompt(m))
		}
		return
	}

	from := m.current
	if next == End {
		m.done = true
		if m.OnTransition != nil {
			m.OnTransition(from, End)
		}
		if m.OnFinish != nil {
			m.OnFinish()
		}
		return
	}

	nn, ok := m.nodes[next]
	if !ok {
		m.done = true
		return
	}
	m.current = next
	if m.OnTransition != nil {
		m.OnTransition(from, next)
	}
	if nn.Prompt != nil {
		m.Send(nn.Prompt(m))
	}
}
