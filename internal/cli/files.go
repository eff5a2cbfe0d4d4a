package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rainforce/smbclient/internal/errkind"
	"github.com/rainforce/smbclient/internal/localfs"
	"github.com/rainforce/smbclient/internal/pathutil"
	"github.com/rainforce/smbclient/internal/progress"
)

// connect loads the profile and runs the first listing behind a spinner.
func (a *app) connect(ctx context.Context) error {
	reporter := progress.NewReporter(a.errOut)
	reporter.Start(-1, "Listing share")
	err := a.ctrl.Start(ctx)
	if err != nil && errkind.KindOf(err) != errkind.IncompleteProfile {
		reporter.Error(nil)
	} else {
		reporter.Finish()
	}
	return userError(err)
}

// refresh re-lists the share behind a spinner.
func (a *app) refresh(ctx context.Context) error {
	reporter := progress.NewReporter(a.errOut)
	reporter.Start(-1, "Listing share")
	err := a.ctrl.RefreshList(ctx)
	if err != nil {
		reporter.Error(nil)
	} else {
		reporter.Finish()
	}
	return userError(err)
}

// selectTarget makes dir the local target folder. On the real filesystem
// the path is resolved first so presence results stay stable.
func (a *app) selectTarget(ctx context.Context, dir string) error {
	dir, err := a.resolveLocal(dir)
	if err != nil {
		return err
	}
	return userError(a.ctrl.SetLocalTarget(ctx, dir))
}

// resolveLocal expands and absolutizes a user-supplied path on the OS
// filesystem. Other filesystems take paths verbatim.
func (a *app) resolveLocal(path string) (string, error) {
	if path == "" || !a.osFS {
		return path, nil
	}
	resolved, err := pathutil.ResolveAbsolutePath(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", path, err)
	}
	return resolved, nil
}

func newLsCmd() *cobra.Command {
	var localDir string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List the files at the top level of the share",
		Long: `List the visible files at the top level of the share, sorted by name.

With --local, files already present in that folder are marked with '*'.`,
		Example: `  smbclient ls
  smbclient ls --local ~/Downloads`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.runLs(ctx, localDir)
			})
		},
	}

	cmd.Flags().StringVar(&localDir, "local", "", "Local folder to compare against")

	return cmd
}

func (a *app) runLs(ctx context.Context, localDir string) error {
	if localDir != "" {
		if err := a.selectTarget(ctx, localDir); err != nil {
			return err
		}
	}
	err := a.connect(ctx)
	if errors.Is(err, errNoProfile) {
		return err
	}
	printEntries(a.out, a.ctrl.Snapshot())
	if err != nil {
		return fmt.Errorf("listing failed")
	}
	return nil
}

func newGetCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "get NAME...",
		Short: "Download files from the share",
		Long: `Download one or more files from the top level of the share into a local
folder (default: the current directory). Existing local files are
overwritten. Up to max_concurrent files move at once.`,
		Example: `  smbclient get report.pdf
  smbclient get a.txt b.txt --dir ~/Downloads`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.runGet(ctx, dir, args)
			})
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Local folder to download into")

	return cmd
}

func (a *app) runGet(ctx context.Context, dir string, names []string) error {
	if err := a.connect(ctx); err != nil {
		return err
	}
	if err := a.selectTarget(ctx, dir); err != nil {
		return err
	}
	return a.downloadNames(ctx, names)
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put FILE...",
		Short: "Upload local files to the share",
		Long: `Upload one or more local files to the top level of the share. A file whose
name already exists on the share is refused; nothing is overwritten.`,
		Example: `  smbclient put report.pdf
  smbclient put *.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.runPut(ctx, args)
			})
		},
	}
	return cmd
}

func (a *app) runPut(ctx context.Context, files []string) error {
	if err := a.connect(ctx); err != nil {
		return err
	}
	return a.uploadFiles(ctx, files)
}

// listLocal prints the local target folder, marking files that also exist
// on the share.
func (a *app) listLocal(dir string) error {
	if dir == "" {
		return fmt.Errorf("no local folder selected; use 'lcd DIR'")
	}
	files, err := a.local.ListDirectory(dir, localfs.ListOptions{FilesOnly: true})
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}
	state := a.ctrl.Snapshot()
	remoteNames := make(map[string]bool, len(state.Entries))
	for _, e := range state.Entries {
		remoteNames[e.Path] = true
	}
	if len(files) == 0 {
		fmt.Fprintf(a.out, "%s is empty.\n", dir)
		return nil
	}
	for _, f := range files {
		marker := " "
		if remoteNames[f.Name] {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s %-40s %12s\n", marker, f.Name, formatBytes(f.Size))
	}
	return nil
}
