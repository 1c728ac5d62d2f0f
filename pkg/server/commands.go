package server

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/traumwelt-mud/traumwelt/pkg/events"
	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
)

// CommandHandler is the signature for game command implementations.
type CommandHandler func(g *Game, d *Descriptor, args string)

// Command represents a registered game command.
type Command struct {
	Name     string
	Handler  CommandHandler
	NeedChar bool // if true, the command requires a bound character
}

// InitCommands registers all available game commands.
func InitCommands() map[string]*Command {
	cmds := make(map[string]*Command)

	register := func(name string, handler CommandHandler) {
		cmds[strings.ToLower(name)] = &Command{Name: name, Handler: handler}
	}
	registerIC := func(name string, handler CommandHandler) {
		cmds[strings.ToLower(name)] = &Command{Name: name, Handler: handler, NeedChar: true}
	}

	// Account / session
	register("look", cmdLook)
	register("charcreate", cmdCharCreate)
	register("chardelete", cmdCharDelete)
	register("ic", cmdIC)
	register("puppet", cmdIC)
	register("ooc", cmdOOC)
	register("WHO", cmdWho)
	register("DOING", cmdDoing)
	register("QUIT", cmdQuit)
	register("help", cmdHelp)

	// In character
	registerIC("say", cmdSay)
	registerIC("\"", cmdSay)
	registerIC("echo", cmdEcho)
	registerIC("get", cmdGet)
	registerIC("take", cmdGet)
	registerIC("drop", cmdDrop)
	registerIC("inventory", cmdInventory)
	registerIC("i", cmdInventory)
	registerIC("sheet", cmdSheet)

	return cmds
}

// DispatchCommand parses one input line and runs the matching command.
func DispatchCommand(g *Game, d *Descriptor, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	if g.Metrics != nil {
		g.Metrics.Command()
	}

	// " is shorthand for say.
	if input[0] == '"' {
		if requireChar(g, d) != nil {
			cmdSay(g, d, strings.TrimSpace(input[1:]))
		}
		return
	}

	var cmdName, args string
	if spaceIdx := strings.IndexByte(input, ' '); spaceIdx >= 0 {
		cmdName = input[:spaceIdx]
		args = strings.TrimSpace(input[spaceIdx+1:])
	} else {
		cmdName = input
	}

	cmd, ok := g.Commands[strings.ToLower(cmdName)]
	if !ok {
		d.Send("Huh?  (Type \"help\" for help.)")
		return
	}
	if cmd.NeedChar && requireChar(g, d) == nil {
		return
	}
	cmd.Handler(g, d, args)
}

// requireChar returns the descriptor's bound character, telling the player
// how to get one if there is none.
func requireChar(g *Game, d *Descriptor) *gamedb.Object {
	if d.Puppet == gamedb.Nothing {
		d.Send("You are not playing a character. Use ic <name> first.")
		return nil
	}
	char := g.DB.Get(d.Puppet)
	if char == nil {
		d.Send("You are not playing a character. Use ic <name> first.")
		return nil
	}
	return char
}

// --- Account commands ---

// cmdLook is both views: out of character it shows the account roster, in
// character the current room.
func cmdLook(g *Game, d *Descriptor, args string) {
	if d.Puppet != gamedb.Nothing {
		if char := g.DB.Get(d.Puppet); char != nil {
			g.ShowRoom(d, char.Location)
			return
		}
	}
	showRoster(g, d)
}

// showRoster is the out-of-character account overview: the slot list with
// in-progress and currently-played annotations, and the commands that apply.
func showRoster(g *Game, d *Descriptor) {
	acct := g.DB.GetAccount(d.Account)
	if acct == nil {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Account: %s (%s)\r\n", acct.Name, acct.Level)

	chars := g.Slots.List(acct)
	quota := fmt.Sprintf("%d/%d", len(chars), g.Conf.MaxCharacters)
	if acct.Privileged() {
		quota = fmt.Sprintf("%d (no limit)", len(chars))
	}
	fmt.Fprintf(&sb, "Characters (%s):\r\n", quota)
	if len(chars) == 0 {
		sb.WriteString("  none yet\r\n")
	}
	for _, c := range chars {
		note := ""
		if c.InProgress() {
			note = "  [creation in progress]"
		} else if holder := g.Binder.Holder(c.Ref); holder != nil {
			if holder.Account == acct.ID {
				note = "  (being played by you)"
			} else {
				note = fmt.Sprintf("  (being played by %s)", g.AccountName(holder.Account))
			}
		}
		fmt.Fprintf(&sb, "  %s%s\r\n", c.Name, note)
	}
	sb.WriteString("\r\nCommands: charcreate, chardelete <name>, ic <name>, who, quit")
	d.Send(sb.String())
}

func cmdCharCreate(g *Game, d *Descriptor, _ string) {
	acct := g.DB.GetAccount(d.Account)
	if acct == nil {
		return
	}
	char, resumed, err := g.Slots.BeginOrResumeCreation(acct)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			d.Send(fmt.Sprintf("You already have %d characters. Delete one first.", g.Conf.MaxCharacters))
			return
		}
		d.Send(fmt.Sprintf("Cannot create a character: %v", err))
		return
	}
	if resumed {
		d.Send("Resuming your unfinished character.")
	}
	g.StartChargen(d, acct, char)
}

func cmdCharDelete(g *Game, d *Descriptor, args string) {
	acct := g.DB.GetAccount(d.Account)
	if acct == nil {
		return
	}
	if args == "" {
		d.Send("Usage: chardelete <name>")
		return
	}

	pd, err := g.Slots.ProposeDelete(acct, args)
	if err != nil {
		var amb *AmbiguousError
		switch {
		case errors.Is(err, ErrNotFound):
			d.Send(fmt.Sprintf("You have no character named %s.", args))
		case errors.Is(err, ErrPermissionDenied):
			d.Send("You may not delete that character.")
		case errors.As(err, &amb):
			d.Send("Which one do you mean? " + amb.Error())
		default:
			d.Send(fmt.Sprintf("Cannot delete: %v", err))
		}
		return
	}

	d.Send(fmt.Sprintf("This will permanently delete %s. Type yes to confirm, anything else to abort.", pd.Name))
	d.PromptFunc = func(line string) bool {
		deleted, booted, err := g.Slots.ConfirmDelete(acct, pd, line, d.Addr)
		switch {
		case deleted:
			// The slot is gone from the live world even if the store write
			// failed; that failure is an operator problem, not the player's.
			if err != nil {
				log.Printf("WARNING: delete %s: %v", pd.Name, err)
			}
			d.Send(fmt.Sprintf("%s has been deleted.", pd.Name))
			if booted != nil && booted != d {
				booted.Send(fmt.Sprintf("%s has been deleted. You are out of character.", pd.Name))
			}
		case err != nil:
			d.Send(fmt.Sprintf("Deletion failed: %v", err))
		default:
			d.Send("Deletion aborted.")
		}
		return true
	}
}

func cmdIC(g *Game, d *Descriptor, args string) {
	acct := g.DB.GetAccount(d.Account)
	if acct == nil {
		return
	}

	char, err := g.Binder.Acquire(d, acct, args)
	if err != nil {
		var amb *AmbiguousError
		switch {
		case errors.Is(err, ErrNoSelector):
			d.Send("Usage: ic <name>")
		case errors.Is(err, ErrNotFound):
			d.Send("No such character.")
		case errors.Is(err, ErrAlreadyControlled):
			d.Send("That character is already being played.")
		case errors.Is(err, ErrPermissionDenied):
			d.Send("You may not play that character.")
		case errors.As(err, &amb):
			d.Send("Which one do you mean? " + amb.Error())
		default:
			d.Send(fmt.Sprintf("Cannot enter the world: %v", err))
		}
		return
	}

	// A character parked out of the world returns to its home.
	if char.Location == gamedb.Nothing {
		home := char.Home
		if g.DB.Get(home) == nil {
			home = gamedb.ObjRef(g.Conf.StartRoom)
		}
		if g.DB.Get(home) != nil {
			char.Location = home
			g.DB.AddToContents(home, char.Ref)
			g.PersistObjects(char)
		}
	}

	d.Send(fmt.Sprintf("You become %s.", char.Name))
	if char.Location != gamedb.Nothing {
		g.AnnounceToRoom(char.Location, char.Ref, fmt.Sprintf("%s has connected.", char.Name))
		g.ShowRoom(d, char.Location)
	}
}

func cmdOOC(g *Game, d *Descriptor, _ string) {
	if d.Puppet == gamedb.Nothing {
		d.Send("You are already out of character.")
		return
	}
	char := g.DB.Get(d.Puppet)
	g.Binder.Release(d)
	if char != nil && char.Location != gamedb.Nothing {
		g.AnnounceToRoom(char.Location, char.Ref, fmt.Sprintf("%s goes out of character.", char.Name))
	}
	d.Send("You go out of character.")
	showRoster(g, d)
}

func cmdWho(g *Game, d *Descriptor, _ string) {
	acct := g.DB.GetAccount(d.Account)
	showWho(g, d, acct != nil && WizWho(acct))
}

// cmdDoing is the plain player listing, even for staff.
func cmdDoing(g *Game, d *Descriptor, _ string) {
	showWho(g, d, false)
}

func showWho(g *Game, d *Descriptor, wiz bool) {
	descs := g.Conns.AllDescriptors()
	sort.Slice(descs, func(i, j int) bool { return descs[i].ID < descs[j].ID })

	var sb strings.Builder
	if wiz {
		sb.WriteString(fmt.Sprintf("%-16s %-16s %-12s %s\r\n", "Account", "Character", "Transport", "From"))
	} else {
		sb.WriteString(fmt.Sprintf("%-16s %-16s\r\n", "Account", "Character"))
	}

	count := 0
	for _, dd := range descs {
		if dd.State != ConnConnected {
			continue
		}
		count++
		charName := "-"
		if dd.Puppet != gamedb.Nothing {
			charName = g.CharacterName(dd.Puppet)
		}
		if wiz {
			transport := "tcp"
			if dd.Transport == TransportWebSocket {
				transport = "websocket"
			}
			sb.WriteString(fmt.Sprintf("%-16s %-16s %-12s %s\r\n",
				g.AccountName(dd.Account), charName, transport, dd.Addr))
		} else {
			sb.WriteString(fmt.Sprintf("%-16s %-16s\r\n", g.AccountName(dd.Account), charName))
		}
	}
	sb.WriteString(fmt.Sprintf("%d account(s) connected.", count))
	d.Send(sb.String())
}

func cmdQuit(g *Game, d *Descriptor, args string) {
	if strings.EqualFold(args, "all") {
		for _, dd := range g.Conns.GetByAccount(d.Account) {
			if dd != d {
				quitSession(g, dd)
			}
		}
	}
	quitSession(g, d)
}

func quitSession(g *Game, d *Descriptor) {
	g.DisconnectSession(d)
	if g.Texts != nil {
		if txt := g.Texts.QuitText(); txt != "" {
			d.SendNoNewline(txt)
		} else {
			d.Send("Sleep well.")
		}
	} else {
		d.Send("Sleep well.")
	}
	d.Close()
}

func cmdHelp(g *Game, d *Descriptor, _ string) {
	names := make([]string, 0, len(g.Commands))
	seen := make(map[string]bool)
	for _, cmd := range g.Commands {
		if !seen[cmd.Name] {
			seen[cmd.Name] = true
			names = append(names, cmd.Name)
		}
	}
	sort.Strings(names)
	d.Send("Commands: " + strings.Join(names, ", "))
}

// --- In-character commands ---

func cmdSay(g *Game, d *Descriptor, args string) {
	char := requireChar(g, d)
	if char == nil {
		return
	}
	if args == "" {
		d.Send("Say what?")
		return
	}
	d.Send(fmt.Sprintf("You say \"%s\"", args))
	g.Bus.EmitToRoomExcept(g.DB, char.Location, char.Ref, events.Event{
		Type:   events.EvSay,
		Source: char.Ref,
		Room:   char.Location,
		Text:   fmt.Sprintf("%s says \"%s\"", char.Name, args),
		Data:   map[string]any{"message": args, "speaker": char.Name},
	})
}

// cmdEcho repeats the argument back to the sender only. Useful for testing
// client line handling.
func cmdEcho(g *Game, d *Descriptor, args string) {
	char := requireChar(g, d)
	if char == nil {
		return
	}
	if args == "" {
		d.Send("Echo what?")
		return
	}
	g.Bus.EmitToCharacter(char.Ref, events.Event{
		Type: events.EvEcho,
		Text: args,
	})
}

func cmdGet(g *Game, d *Descriptor, args string) {
	char := requireChar(g, d)
	if char == nil {
		return
	}
	if args == "" {
		d.Send("Get what?")
		return
	}
	if char.Location == gamedb.Nothing {
		d.Send("There is nothing here.")
		return
	}

	matches := g.DB.SearchContents(char.Location, args)
	if strings.EqualFold(char.Name, args) || strings.EqualFold(args, "me") {
		d.Send("You cannot pick yourself up, however hard you try.")
		return
	}
	switch {
	case len(matches) == 0:
		d.Send("You don't see that here.")
		return
	case len(matches) > 1:
		d.Send((&AmbiguousError{Selector: args, Candidates: matches}).Error())
		return
	}
	target := matches[0]

	if target.Ref == char.Ref {
		d.Send("You cannot pick yourself up, however hard you try.")
		return
	}
	if target.IsCharacter() {
		d.Send(fmt.Sprintf("%s would object to that.", target.Name))
		return
	}
	if target.GetRefusal != "" {
		d.Send(target.GetRefusal)
		return
	}
	if target.Type != gamedb.TypeThing {
		d.Send("You can't take that.")
		return
	}

	g.DB.RemoveFromContents(char.Location, target.Ref)
	target.Location = char.Ref
	g.DB.AddToContents(char.Ref, target.Ref)
	g.PersistObjects(target, char)

	d.Send(fmt.Sprintf("You take %s.", target.Name))
	g.AnnounceToRoom(char.Location, char.Ref, fmt.Sprintf("%s picks up %s.", char.Name, target.Name))
}

func cmdDrop(g *Game, d *Descriptor, args string) {
	char := requireChar(g, d)
	if char == nil {
		return
	}
	if args == "" {
		d.Send("Drop what?")
		return
	}

	matches := g.DB.SearchContents(char.Ref, args)
	switch {
	case len(matches) == 0:
		d.Send("You aren't carrying that.")
		return
	case len(matches) > 1:
		d.Send((&AmbiguousError{Selector: args, Candidates: matches}).Error())
		return
	}
	target := matches[0]

	if char.Location == gamedb.Nothing {
		d.Send("There is nowhere to drop it.")
		return
	}

	g.DB.RemoveFromContents(char.Ref, target.Ref)
	target.Location = char.Location
	g.DB.AddToContents(char.Location, target.Ref)
	g.PersistObjects(target, char)

	d.Send(fmt.Sprintf("You drop %s.", target.Name))
	g.AnnounceToRoom(char.Location, char.Ref, fmt.Sprintf("%s drops %s.", char.Name, target.Name))
}

func cmdInventory(g *Game, d *Descriptor, _ string) {
	char := requireChar(g, d)
	if char == nil {
		return
	}
	contents := g.DB.ContentsOf(char.Ref)
	if len(contents) == 0 {
		d.Send("You aren't carrying anything.")
		return
	}
	d.Send("You are carrying:")
	for _, ref := range contents {
		if obj := g.DB.Get(ref); obj != nil {
			d.Send("  " + obj.Name)
		}
	}
}

// cmdSheet shows the character's attribute table.
func cmdSheet(g *Game, d *Descriptor, _ string) {
	char := requireChar(g, d)
	if char == nil {
		return
	}
	st := char.Stats
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\r\n", char.Name)
	sb.WriteString(strings.Repeat("-", len(char.Name)) + "\r\n")
	rows := []struct {
		name string
		val  int
	}{
		{"Strength", st.Strength},
		{"Intelligence", st.Intelligence},
		{"Wisdom", st.Wisdom},
		{"Stamina", st.Stamina},
		{"Vitality", st.Vitality},
		{"Focus", st.Focus},
	}
	for _, r := range rows {
		fmt.Fprintf(&sb, "  %-12s %3d\r\n", r.name, r.val)
	}
	fmt.Fprintf(&sb, "  %-12s %3d", "Total", st.Total())
	d.Send(sb.String())
}
