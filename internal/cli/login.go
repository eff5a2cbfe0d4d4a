package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rainforce/smbclient/internal/errkind"
	"github.com/rainforce/smbclient/internal/profile"
)

func newLoginCmd() *cobra.Command {
	var (
		serverURL     string
		username      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the server profile and list the share",
		Long: `Save the server URL, username and password, then connect and list the
share. Missing values are prompted for; the current profile supplies the
defaults.

Server URL forms:
  smb://host[:port]/share[/dir]
  \\host\share\dir

Use DOMAIN\user for domain accounts. --password-stdin reads the password
from the first line of standard input.`,
		Example: `  smbclient login
  smbclient login --url smb://nas/public --user alice
  echo "$PASS" | smbclient login --url smb://nas/public --user alice --password-stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				p := newPrompter(os.Stdin, a.errOut)
				return a.login(ctx, p, loginInput{
					ServerURL:     serverURL,
					Username:      username,
					PasswordStdin: passwordStdin,
				})
			})
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", "", "Server URL (smb://host/share or \\\\host\\share)")
	cmd.Flags().StringVarP(&username, "user", "u", "", "Username (DOMAIN\\user for domain accounts)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from standard input")

	return cmd
}

// loginInput carries values given on the command line.
type loginInput struct {
	ServerURL     string
	Username      string
	PasswordStdin bool
}

// login collects the profile, saves it and prints the first listing.
func (a *app) login(ctx context.Context, p *prompter, in loginInput) error {
	current, err := profile.Load(a.store)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to read saved profile")
	}

	serverURL := in.ServerURL
	if serverURL == "" {
		if serverURL, err = p.required("Server URL", current.ServerURL); err != nil {
			return err
		}
	}
	username := in.Username
	if username == "" {
		if username, err = p.required("Username", current.Username); err != nil {
			return err
		}
	}

	var password string
	if in.PasswordStdin {
		password, err = readPasswordLine(p.reader)
	} else {
		password, err = p.password("Password")
	}
	if err != nil {
		return err
	}

	err = a.ctrl.SaveProfile(ctx, serverURL, username, password)
	state := a.ctrl.Snapshot()
	switch {
	case err == nil:
		fmt.Fprintf(a.out, "✓ Connected to %s\n\n", state.Profile.ServerURL)
		printEntries(a.out, state)
		return nil
	case errkind.KindOf(err) == errkind.IncompleteProfile:
		return fmt.Errorf("profile saved but incomplete; missing %v", state.Profile.Missing())
	default:
		// The profile is kept so the user can retry with `smbclient ls`
		return fmt.Errorf("profile saved, but the share could not be listed: %s", describe(err))
	}
}

func readPasswordLine(r io.Reader) (string, error) {
	p := newPrompter(r, io.Discard)
	return p.password("")
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.ctrl.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "✓ Logged out")
				return nil
			})
		},
	}
}
