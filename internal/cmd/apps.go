package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/loopbridge/internal/app"
	"github.com/Iron-Ham/loopbridge/internal/app/heartbeat"
	"github.com/Iron-Ham/loopbridge/internal/app/watch"
	"github.com/Iron-Ham/loopbridge/internal/config"
	"github.com/Iron-Ham/loopbridge/internal/util"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List the applications a bridge can host",
	Args:  cobra.NoArgs,
	RunE:  runApps,
}

func init() {
	rootCmd.AddCommand(appsCmd)
}

// newRegistry builds the application registry from cfg. It is separate from
// the process-wide registry so configuration reaches the creators.
func newRegistry(cfg *config.Config) (*app.Registry, error) {
	reg := app.NewRegistry()

	hb := heartbeat.NewCreator(heartbeat.Config{
		Interval: cfg.Heartbeat.Interval(),
		MaxBeats: cfg.Heartbeat.MaxBeats,
	})
	if err := reg.Register(heartbeat.ID, app.Default().Describe(heartbeat.ID), hb); err != nil {
		return nil, err
	}

	w := watch.NewCreator(watch.Config{
		Dir:      cfg.Watch.ResolveDir(),
		Patterns: cfg.Watch.Patterns,
		Debounce: cfg.Watch.Debounce(),
		QuitFile: cfg.Watch.QuitFile,
	})
	if err := reg.Register(watch.ID, app.Default().Describe(watch.ID), w); err != nil {
		return nil, err
	}
	return reg, nil
}

func runApps(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	printApps(cmd.OutOrStdout(), reg, cfg.Bridge.App, terminalWidth(cmd.OutOrStdout(), 80))
	return nil
}

func printApps(w io.Writer, reg *app.Registry, selected string, width int) {
	ids := reg.Identifiers()
	nameWidth := 0
	for _, id := range ids {
		nameWidth = max(nameWidth, len(id))
	}
	for _, id := range ids {
		marker := " "
		if id == selected {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s  %s", marker, util.PadRight(id, nameWidth), reg.Describe(id))
		fmt.Fprintln(w, util.Fit(line, width))
	}
}

// terminalWidth returns the column count of w when it is a terminal, or
// fallback otherwise.
func terminalWidth(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return fallback
	}
	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
		return width
	}
	return fallback
}
