package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ergochat/readline"

	"github.com/thomknoe/woz"
	"github.com/thomknoe/woz/client"
	"github.com/thomknoe/woz/utils"
)

// REPL per se. The grid is the local layout under edit; the store and
// client exist once the operator connects to a relay.
type REPL struct {
	grid  *woz.Grid
	store *woz.Store
	cli   *client.Client

	ctx    context.Context
	cancel context.CancelFunc
	log    utils.Logger
	rl     *readline.Instance
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("grid"),
	readline.PcItem("gen"),
	readline.PcItem("add"),
	readline.PcItem("mv"),
	readline.PcItem("rs"),
	readline.PcItem("set"),
	readline.PcItem("lock"),
	readline.PcItem("rm"),
	readline.PcItem("show"),

	readline.PcItem("connect"),
	readline.PcItem("push"),
	readline.PcItem("pull"),
	readline.PcItem("event"),
	readline.PcItem("press"),
	readline.PcItem("name"),
	readline.PcItem("bye"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ", //"\033[31m◌\033[0m ",
		HistoryFile:     ".woz_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	repl.ctx, repl.cancel = context.WithCancel(context.Background())
	repl.log = utils.NewDefaultLogger(slog.LevelWarn)
	repl.store = woz.NewStore(repl.log)
	repl.grid = woz.NewGrid(woz.DefaultCols, woz.DefaultRows)
	return
}

func (repl *REPL) Close() error {
	if repl.cli != nil {
		_ = repl.cli.Close()
		repl.cli = nil
	}
	if repl.cancel != nil {
		repl.cancel()
	}
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

func (repl *REPL) REPL() (err error) {
	var line string
	line, err = repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}

	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	cmd := line
	arg := ""
	if ws := strings.IndexAny(line, " \t"); ws > 0 {
		cmd = line[:ws]
		arg = strings.TrimSpace(line[ws:])
	}

	switch cmd {
	case "help":
		repl.CommandHelp()
	// ----- layout editing -----
	case "grid":
		err = repl.CommandGrid(arg)
	case "gen":
		err = repl.CommandGen(arg)
	case "add":
		err = repl.CommandAdd(arg)
	case "mv", "move":
		err = repl.CommandMove(arg)
	case "rs", "resize":
		err = repl.CommandResize(arg)
	case "set":
		err = repl.CommandSet(arg)
	case "lock":
		err = repl.CommandLock(arg)
	case "rm", "del":
		err = repl.CommandRemove(arg)
	case "ls", "show", "list":
		err = repl.CommandShow(arg)
	// ----- relay -----
	case "connect":
		err = repl.CommandConnect(arg)
	case "push":
		err = repl.CommandPush(arg)
	case "pull":
		err = repl.CommandPull(arg)
	case "event":
		err = repl.CommandEvent(arg)
	case "press":
		err = repl.CommandPress(arg)
	case "name":
		err = repl.CommandName(arg)
	case "bye":
		err = repl.CommandBye(arg)
	case "exit", "quit":
		err = io.EOF
	default:
		_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
	}
	return
}

func main() {
	repl := REPL{}

	err := repl.Open()

	for err != io.EOF {
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
			err = nil
		}
		err = repl.REPL()
	}
	_ = repl.Close()
}
