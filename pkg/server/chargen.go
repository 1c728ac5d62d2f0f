package server

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
	"github.com/traumwelt-mud/traumwelt/pkg/menu"
)

// Chargen node keys. ChargenStart is stamped on a fresh slot; the other keys
// only ever appear as a stored cursor when a connection dropped mid-flow.
const (
	ChargenStart   = "welcome"
	chargenName    = "name"
	chargenStats   = "stats"
	chargenConfirm = "confirm"
)

const (
	chargenPoints  = 30 // points to spread across the six attributes
	chargenStatMax = 10
)

var chargenStatNames = []string{
	"Strength", "Intelligence", "Wisdom", "Stamina", "Vitality", "Focus",
}

func setStat(st *gamedb.Stats, idx, v int) {
	switch idx {
	case 0:
		st.Strength = v
	case 1:
		st.Intelligence = v
	case 2:
		st.Wisdom = v
	case 3:
		st.Stamina = v
	case 4:
		st.Vitality = v
	case 5:
		st.Focus = v
	}
}

func validCharName(name string) bool {
	if len(name) < 3 || len(name) > 20 {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// StartChargen attaches the creation menu for char to the descriptor. The
// menu owns the connection's input until it finishes. The flow resumes at
// the character's stored cursor, so a dropped connection picks up where it
// left off. Every transition persists the cursor before the next prompt;
// on completion the finished character is persisted first and the cursor
// cleared in a separate, final write.
func (g *Game) StartChargen(d *Descriptor, acct *gamedb.Account, char *gamedb.Object) {
	m := menu.New(g.chargenNodes(acct, char), d.Send)

	m.OnTransition = func(from, to string) {
		if to == menu.End {
			// The finished character, start-room placement included, must be
			// durable before the cursor is cleared; a crash between the two
			// writes leaves a resumable slot, never a half-made playable one.
			// Clearing the cursor is the final write of the flow.
			g.placeInWorld(char)
			g.PersistObjects(char)
			char.ChargenStep = ""
			g.PersistObjects(char)
			return
		}
		char.ChargenStep = to
		g.PersistObjects(char)
	}

	m.OnFinish = func() {
		g.enterWorld(d, acct, char)
	}

	d.PromptFunc = func(line string) bool {
		m.Input(line)
		return m.Done()
	}

	start := char.ChargenStep
	if start == "" {
		start = ChargenStart
	}
	m.Start(start)
	if m.Done() && char.InProgress() {
		// Stored cursor named a node that no longer exists; restart cleanly.
		char.ChargenStep = ChargenStart
		g.PersistObjects(char)
		d.PromptFunc = nil
		g.StartChargen(d, acct, char)
	}
}

func (g *Game) chargenNodes(acct *gamedb.Account, char *gamedb.Object) []*menu.Node {
	return []*menu.Node{
		{
			Key: ChargenStart,
			Prompt: func(m *menu.Menu) string {
				return fmt.Sprintf(
					"Welcome to character creation, %s.\r\n"+
						"You will choose a name and shape your attributes.\r\n"+
						"You can disconnect at any time and resume later.\r\n"+
						"Press return to begin.", acct.Name)
			},
			Handle: func(m *menu.Menu, input string) string {
				return chargenName
			},
		},
		{
			Key: chargenName,
			Prompt: func(m *menu.Menu) string {
				return "Choose a name (letters only, 3-20 characters):"
			},
			Handle: func(m *menu.Menu, input string) string {
				if !validCharName(input) {
					m.Send("That is not a usable name.")
					return chargenName
				}
				name := strings.ToUpper(input[:1]) + strings.ToLower(input[1:])
				if g.nameTaken(acct, char.Ref, name) {
					m.Send("That name is already taken.")
					return chargenName
				}
				char.Name = name
				return chargenStats
			},
		},
		{
			Key: chargenStats,
			Prompt: func(m *menu.Menu) string {
				idx, _ := m.Values["stat_idx"].(int)
				spent, _ := m.Values["stat_spent"].(int)
				if idx == 0 {
					return fmt.Sprintf(
						"Distribute %d points across %d attributes (max %d each).\r\n%s:",
						chargenPoints, len(chargenStatNames), chargenStatMax,
						chargenStatNames[0])
				}
				return fmt.Sprintf("%s (%d points left):",
					chargenStatNames[idx], chargenPoints-spent)
			},
			Handle: func(m *menu.Menu, input string) string {
				idx, _ := m.Values["stat_idx"].(int)
				spent, _ := m.Values["stat_spent"].(int)

				v, err := strconv.Atoi(input)
				if err != nil || v < 0 || v > chargenStatMax {
					m.Send(fmt.Sprintf("Enter a number between 0 and %d.", chargenStatMax))
					return chargenStats
				}
				if spent+v > chargenPoints {
					m.Send(fmt.Sprintf("Only %d points left.", chargenPoints-spent))
					return chargenStats
				}

				setStat(&char.Stats, idx, v)
				m.Values["stat_idx"] = idx + 1
				m.Values["stat_spent"] = spent + v
				if idx+1 < len(chargenStatNames) {
					m.Send(fmt.Sprintf("%s set to %d.", chargenStatNames[idx], v))
					return ""
				}
				return chargenConfirm
			},
		},
		{
			Key: chargenConfirm,
			Prompt: func(m *menu.Menu) string {
				var sb strings.Builder
				fmt.Fprintf(&sb, "Name: %s\r\n", char.Name)
				st := char.Stats
				vals := []int{st.Strength, st.Intelligence, st.Wisdom,
					st.Stamina, st.Vitality, st.Focus}
				for i, n := range chargenStatNames {
					fmt.Fprintf(&sb, "  %-12s %d\r\n", n, vals[i])
				}
				sb.WriteString("Type yes to enter the world, or restart to begin again.")
				return sb.String()
			},
			Handle: func(m *menu.Menu, input string) string {
				switch strings.ToLower(input) {
				case "yes":
					return menu.End
				case "restart":
					m.Values["stat_idx"] = 0
					m.Values["stat_spent"] = 0
					char.Stats = gamedb.Stats{}
					return chargenName
				}
				m.Send("Please answer yes or restart.")
				return chargenConfirm
			},
		},
	}
}

// nameTaken reports whether any other character already carries name.
func (g *Game) nameTaken(acct *gamedb.Account, self gamedb.ObjRef, name string) bool {
	for _, obj := range g.DB.SearchGlobal(name) {
		if obj.Ref != self && obj.IsCharacter() {
			return true
		}
	}
	return false
}

// placeInWorld moves the finished character into the start room.
func (g *Game) placeInWorld(char *gamedb.Object) {
	start := gamedb.ObjRef(g.Conf.StartRoom)
	if char.Location == gamedb.Nothing && g.DB.Get(start) != nil {
		g.DB.AddToContents(start, char.Ref)
	}
}

// enterWorld binds the freshly finished character. Placement already happened
// before the cursor was cleared.
func (g *Game) enterWorld(d *Descriptor, acct *gamedb.Account, char *gamedb.Object) {
	if _, err := g.Binder.Acquire(d, acct, char.Name); err != nil {
		d.Send(fmt.Sprintf("Character %s is ready, but could not be entered: %v", char.Name, err))
		d.Send("Use ic " + char.Name + " to play.")
		return
	}

	d.Send(fmt.Sprintf("Welcome to the world, %s.", char.Name))
	if char.Location != gamedb.Nothing {
		g.AnnounceToRoom(char.Location, char.Ref, fmt.Sprintf("%s appears for the first time.", char.Name))
		g.ShowRoom(d, char.Location)
	}
}
