package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/rainforce/smbclient/internal/events"
	"github.com/rainforce/smbclient/internal/session"
)

const shellHelp = `Commands:
  ls              list the share
  lls             list the local folder ('*' = also on the share)
  lcd DIR         select the local folder for downloads
  get NAME...     download files into the local folder
  put FILE...     upload local files to the share
  status          show the session state
  login           change the saved profile
  logout          forget the saved profile
  help            show this help
  quit            leave the shell
Names containing spaces can be double-quoted.`

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session",
		Long: `Start an interactive session against the saved profile.

` + shellHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.runShell(ctx, os.Stdin)
			})
		},
	}
}

// runShell reads commands from in until quit, EOF or cancellation. The
// prompt follows the session state published by the controller.
func (a *app) runShell(ctx context.Context, in io.Reader) error {
	sub := a.ctrl.Subscribe()
	defer a.ctrl.Unsubscribe(sub)

	p := newPrompter(in, a.out)
	view := a.ctrl.Snapshot()

	if err := a.connect(ctx); err != nil {
		if errors.Is(err, errNoProfile) {
			fmt.Fprintln(a.out, "No saved profile; type 'login' to connect.")
		} else {
			fmt.Fprintf(a.out, "Error: %s\n", err)
		}
	} else {
		printEntries(a.out, a.ctrl.Snapshot())
	}

	for {
		view = latestState(sub, view)
		fmt.Fprint(a.out, shellPrompt(view))

		line, err := p.reader.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(a.out)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		args, err := splitArgs(line)
		if err != nil {
			fmt.Fprintf(a.out, "Error: %s\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		quit, err := a.shellCommand(ctx, p, args[0], args[1:])
		if err != nil {
			fmt.Fprintf(a.out, "Error: %s\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (a *app) shellCommand(ctx context.Context, p *prompter, name string, args []string) (quit bool, err error) {
	switch strings.ToLower(name) {
	case "quit", "exit", "bye":
		return true, nil
	case "help", "?":
		fmt.Fprintln(a.out, shellHelp)
	case "ls":
		err := a.refresh(ctx)
		if errors.Is(err, errNoProfile) {
			return false, err
		}
		printEntries(a.out, a.ctrl.Snapshot())
	case "lls":
		return false, a.listLocal(a.ctrl.Snapshot().LocalTarget)
	case "lcd":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: lcd DIR")
		}
		if err := a.selectTarget(ctx, args[0]); err != nil {
			return false, err
		}
		state := a.ctrl.Snapshot()
		fmt.Fprintf(a.out, "Local folder: %s (%d of %d listed file(s) present)\n",
			state.LocalTarget, countPresent(state), len(state.Entries))
	case "get":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: get NAME...")
		}
		if a.ctrl.Snapshot().LocalTarget == "" {
			return false, fmt.Errorf("no local folder selected; use 'lcd DIR'")
		}
		return false, a.downloadNames(ctx, args)
	case "put":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: put FILE...")
		}
		return false, a.uploadFiles(ctx, args)
	case "status":
		printStatus(a.out, a.ctrl.Snapshot())
	case "login":
		return false, a.login(ctx, p, loginInput{})
	case "logout":
		if err := a.ctrl.Logout(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(a.out, "✓ Logged out")
	default:
		return false, fmt.Errorf("unknown command %q; type 'help'", name)
	}
	return false, nil
}

// latestState drains pending session events and returns the newest state.
func latestState(ch <-chan events.Event, view session.SessionState) session.SessionState {
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return view
			}
			if changed, ok := e.(*session.SessionChangedEvent); ok {
				view = changed.State
			}
		default:
			return view
		}
	}
}

func shellPrompt(state session.SessionState) string {
	where := "smbclient"
	if state.Profile.ServerURL != "" {
		where = state.Profile.ServerURL
	}
	return fmt.Sprintf("%s (%s)> ", where, state.Phase)
}

func countPresent(state session.SessionState) int {
	n := 0
	for _, e := range state.Entries {
		if state.IsPresent(e) {
			n++
		}
	}
	return n
}

// splitArgs splits a command line with POSIX shell quoting rules.
func splitArgs(line string) ([]string, error) {
	args, err := shellquote.Split(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return nil, fmt.Errorf("cannot parse command: %w", err)
	}
	return args, nil
}
