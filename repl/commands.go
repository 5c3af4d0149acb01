package main

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/thomknoe/woz"
	"github.com/thomknoe/woz/client"
	"github.com/thomknoe/woz/protocol"
)

var (
	ErrRefused   = errors.New("placement refused")
	ErrOffline   = errors.New("not connected, connect first")
	ErrConnected = errors.New("already connected, bye first")
)

var HelpGrid = errors.New("grid 8 8")

// CommandGrid resizes the surface. With modules on the grid this is a
// reflow and whatever no longer fits is dropped.
func (repl *REPL) CommandGrid(arg string) (err error) {
	var cols, rows int
	if _, err = fmt.Sscanf(arg, "%d %d", &cols, &rows); err != nil {
		return HelpGrid
	}
	if cols < 1 || rows < 1 {
		return HelpGrid
	}
	if repl.grid.Len() > 0 {
		dropped := repl.grid.Reflow(cols, rows)
		for i := range dropped {
			fmt.Printf("dropped %s\n", dropped[i].ID)
		}
	} else {
		repl.grid = woz.NewGrid(cols, rows)
	}
	fmt.Printf("surface %dx%d, %d modules\n", repl.grid.Cols(), repl.grid.Rows(), repl.grid.Len())
	return nil
}

var HelpGen = errors.New("gen [seed]")

func (repl *REPL) CommandGen(arg string) (err error) {
	seed := time.Now().UnixNano()
	if arg != "" {
		if _, err = fmt.Sscanf(arg, "%d", &seed); err != nil {
			return HelpGen
		}
	}
	mods := woz.Generate(repl.grid.Cols(), repl.grid.Rows(), rand.New(rand.NewSource(seed)))
	grid := woz.NewGrid(repl.grid.Cols(), repl.grid.Rows())
	for i := range mods {
		grid.Add(mods[i])
	}
	repl.grid = grid
	fmt.Printf("generated %d modules (seed %d)\n", grid.Len(), seed)
	return nil
}

var HelpAdd = errors.New("add fader 2 0 [3 1]")

func (repl *REPL) CommandAdd(arg string) (err error) {
	m := woz.Module{W: 1, H: 1}
	var kind string
	switch len(strings.Fields(arg)) {
	case 3:
		_, err = fmt.Sscanf(arg, "%s %d %d", &kind, &m.X, &m.Y)
	case 5:
		_, err = fmt.Sscanf(arg, "%s %d %d %d %d", &kind, &m.X, &m.Y, &m.W, &m.H)
	default:
		return HelpAdd
	}
	if err != nil {
		return HelpAdd
	}
	m.Type = woz.Kind(kind)
	if !repl.grid.Add(m) {
		return ErrRefused
	}
	mods := repl.grid.Modules()
	added := mods[len(mods)-1]
	fmt.Printf("added %s %s at %d,%d %dx%d\n", added.ID, added.Type, added.X, added.Y, added.W, added.H)
	return nil
}

var HelpMove = errors.New("mv a3 2 1")

func (repl *REPL) CommandMove(arg string) (err error) {
	var id string
	var x, y int
	if _, err = fmt.Sscanf(arg, "%s %d %d", &id, &x, &y); err != nil {
		return HelpMove
	}
	if !repl.grid.Move(id, x, y) {
		return ErrRefused
	}
	m := repl.grid.Find(id)
	fmt.Printf("%s at %d,%d\n", id, m.X, m.Y)
	return nil
}

var HelpResize = errors.New("rs a3 3 1")

func (repl *REPL) CommandResize(arg string) (err error) {
	var id string
	var w, h int
	if _, err = fmt.Sscanf(arg, "%s %d %d", &id, &w, &h); err != nil {
		return HelpResize
	}
	if !repl.grid.Resize(id, w, h) {
		return ErrRefused
	}
	m := repl.grid.Find(id)
	if m.Orientation != "" {
		fmt.Printf("%s %dx%d %s\n", m.ID, m.W, m.H, m.Orientation)
	} else {
		fmt.Printf("%s %dx%d\n", m.ID, m.W, m.H)
	}
	return nil
}

var HelpSet = errors.New("set a3 0.75")

func (repl *REPL) CommandSet(arg string) (err error) {
	var id string
	var v float64
	if _, err = fmt.Sscanf(arg, "%s %f", &id, &v); err != nil {
		return HelpSet
	}
	if !repl.grid.SetValue(id, v) {
		return ErrRefused
	}
	fmt.Printf("%s = %.2f\n", id, repl.grid.Find(id).Value)
	return nil
}

var HelpLock = errors.New("lock a3")

func (repl *REPL) CommandLock(arg string) (err error) {
	var id string
	if _, err = fmt.Sscanf(arg, "%s", &id); err != nil {
		return HelpLock
	}
	if !repl.grid.ToggleLock(id) {
		return ErrRefused
	}
	if repl.grid.Find(id).Locked {
		fmt.Printf("%s locked\n", id)
	} else {
		fmt.Printf("%s unlocked\n", id)
	}
	return nil
}

var HelpRm = errors.New("rm a3")

func (repl *REPL) CommandRemove(arg string) (err error) {
	var id string
	if _, err = fmt.Sscanf(arg, "%s", &id); err != nil {
		return HelpRm
	}
	if !repl.grid.Remove(id) {
		return ErrRefused
	}
	fmt.Printf("removed %s\n", id)
	return nil
}

// CommandShow draws the surface, one glyph per cell: the first letter
// of the module kind, uppercase when locked. Overlapping modules are
// filtered the way rendering sessions filter them, so the picture is
// what a panel would mount.
func (repl *REPL) CommandShow(arg string) error {
	st := repl.grid.State()
	vis := woz.Visible(st.Modules)

	rows := make([][]rune, st.Surface.Rows)
	for y := range rows {
		rows[y] = make([]rune, st.Surface.Cols)
		for x := range rows[y] {
			rows[y][x] = '·'
		}
	}
	for i := range vis {
		m := &vis[i]
		g := '?'
		if len(m.Type) > 0 {
			g = rune(m.Type[0])
		}
		if m.Locked {
			g = unicode.ToUpper(g)
		}
		for y := m.Y; y < m.Y+m.H && y < st.Surface.Rows; y++ {
			for x := m.X; x < m.X+m.W && x < st.Surface.Cols; x++ {
				rows[y][x] = g
			}
		}
	}

	fmt.Printf("surface %dx%d v%d\n", st.Surface.Cols, st.Surface.Rows, st.V)
	for y := range rows {
		fmt.Println(string(rows[y]))
	}
	for i := range vis {
		m := &vis[i]
		line := fmt.Sprintf("%-10s %-7s %d,%d %dx%d v=%.2f", m.ID, m.Type, m.X, m.Y, m.W, m.H, m.Value)
		if m.Orientation != "" {
			line += " " + m.Orientation
		}
		if m.Locked {
			line += " locked"
		}
		fmt.Println(line)
	}
	if skipped := len(st.Modules) - len(vis); skipped > 0 {
		fmt.Printf("%d overlapping modules hidden\n", skipped)
	}
	return nil
}

var HelpConnect = errors.New("connect ws://127.0.0.1:5001/ws")

func (repl *REPL) CommandConnect(arg string) (err error) {
	if arg == "" {
		return HelpConnect
	}
	if repl.cli != nil {
		return ErrConnected
	}
	repl.cli = client.NewClient(arg, repl.store, repl.log)
	go repl.cli.KeepConnected(repl.ctx)
	fmt.Printf("connecting to %s\n", arg)
	return nil
}

func (repl *REPL) CommandPush(arg string) (err error) {
	if repl.cli == nil {
		return ErrOffline
	}
	st := repl.grid.Bump()
	if err = repl.cli.PushState(st); err != nil {
		return err
	}
	fmt.Printf("pushed v%d, %d modules\n", st.V, len(st.Modules))
	return nil
}

// CommandPull replaces the editing grid with the store's current
// shared state, e.g. the bootstrap received after connect.
func (repl *REPL) CommandPull(arg string) (err error) {
	st := repl.store.State()
	repl.grid = woz.GridOf(st)
	fmt.Printf("pulled v%d, %dx%d, %d modules\n", st.V, st.Surface.Cols, st.Surface.Rows, len(st.Modules))
	return nil
}

var HelpEvent = errors.New("event a3 change 0.5")

func (repl *REPL) CommandEvent(arg string) (err error) {
	if repl.cli == nil {
		return ErrOffline
	}
	evt := protocol.ModuleEvent{}
	var v float64
	switch len(strings.Fields(arg)) {
	case 2:
		_, err = fmt.Sscanf(arg, "%s %s", &evt.ID, &evt.EType)
	case 3:
		if _, err = fmt.Sscanf(arg, "%s %s %f", &evt.ID, &evt.EType, &v); err == nil {
			evt.Value = &v
		}
	default:
		return HelpEvent
	}
	if err != nil {
		return HelpEvent
	}
	repl.store.ApplyEvent(evt.ID, evt.Value)
	if err = repl.cli.SendEvent(evt); err != nil {
		return err
	}
	fmt.Printf("sent %s %s\n", evt.ID, evt.EType)
	return nil
}

var HelpPress = errors.New("press up")

func (repl *REPL) CommandPress(arg string) (err error) {
	if repl.cli == nil {
		return ErrOffline
	}
	if arg == "" {
		return HelpPress
	}
	if err = repl.cli.SendButtonPress(arg); err != nil {
		return err
	}
	fmt.Printf("pressed %s\n", arg)
	return nil
}

var HelpName = errors.New("name thom")

func (repl *REPL) CommandName(arg string) (err error) {
	if repl.cli == nil {
		return ErrOffline
	}
	if arg == "" {
		return HelpName
	}
	if err = repl.cli.UpdateName(arg); err != nil {
		return err
	}
	fmt.Printf("name set to %s\n", arg)
	return nil
}

func (repl *REPL) CommandBye(arg string) (err error) {
	if repl.cli == nil {
		return ErrOffline
	}
	_ = repl.cli.Close()
	repl.cli = nil
	fmt.Println("disconnected")
	return nil
}

func (repl *REPL) CommandHelp() {
	fmt.Println("layout:  grid C R | gen [seed] | add kind x y [w h] | mv id x y | rs id w h")
	fmt.Println("         set id v | lock id | rm id | show")
	fmt.Println("relay:   connect url | push | pull | event id etype [v] | press movement")
	fmt.Println("         name n | bye")
	fmt.Println("         exit | quit")
}
