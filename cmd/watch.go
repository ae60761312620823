package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/registry"
	"github.com/conneroisu/reactive/internal/types"
	"github.com/conneroisu/reactive/internal/watcher"
)

var (
	watchStore   string
	watchNoColor bool
)

var watchCmd = &cobra.Command{
	Use:     "watch FILE",
	Aliases: []string{"w"},
	Short:   "Print the changes of a JSON or YAML file as it is edited",
	Long: `Load FILE into an observable store and print one line per change
whenever the file is saved. Keys removed from the file are reported as
DELETE events.

Examples:
  reactive watch data/app.yaml
  reactive watch settings.json --store settings -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchStore, "store", "", "Store name (default is the file name without extension)")
	watchCmd.Flags().BoolVar(&watchNoColor, "no-color", false, "Disable colored output")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	file := args[0]
	name := watchStore
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}

	stores := registry.NewStoreRegistry()
	ss := watcher.NewStoreSync(stores, logger)
	if err := ss.Track(name, file); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := stores.Watch()
	defer stores.UnWatch(events)

	fw, err := startWatcher(ctx, cfg.Watch, ss, ss.Directories(), logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	color.NoColor = color.NoColor || watchNoColor
	out := cmd.OutOrStdout()
	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s as store %q, press Ctrl+C to stop\n", file, name)

	return printEvents(ctx, out, output, events)
}

// printEvents writes every event until ctx is done or events closes.
func printEvents(ctx context.Context, w io.Writer, format outputFormat, events <-chan types.StoreEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := printEvent(w, format, e); err != nil {
				return err
			}
		}
	}
}

var kindColors = map[types.ChangeKind]*color.Color{
	types.ChangeSet:    color.New(color.FgGreen, color.Bold),
	types.ChangeDelete: color.New(color.FgRed, color.Bold),
	types.ChangeAdd:    color.New(color.FgCyan, color.Bold),
	types.ChangeRemove: color.New(color.FgYellow, color.Bold),
	types.ChangeSort:   color.New(color.FgMagenta, color.Bold),
}

// printEvent writes one event. Text lines carry the previous value of SET
// and DELETE, or the elements of ADD and REMOVE:
//
//	15:04:05 SET    app.user.name "Ada"
func printEvent(w io.Writer, format outputFormat, e types.StoreEvent) error {
	if format == formatJSON {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	if format == formatYAML {
		return render(w, formatYAML, []types.StoreEvent{e}, nil)
	}

	kind := string(e.Event.Kind)
	if c, ok := kindColors[e.Event.Kind]; ok {
		kind = c.Sprintf("%-6s", kind)
	}
	line := fmt.Sprintf("%s %s %s", color.HiBlackString(e.Timestamp.Format("15:04:05")), kind, e.Store+e.Event.Path)

	switch e.Event.Kind {
	case types.ChangeSet, types.ChangeDelete:
		if e.Event.Previous != nil {
			line += " " + compact(e.Event.Previous)
		}
	case types.ChangeAdd, types.ChangeRemove:
		line += " " + compact(e.Event.Elements)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
