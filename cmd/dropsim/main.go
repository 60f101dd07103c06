package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/dropsim/internal/batch"
	"github.com/san-kum/dropsim/internal/config"
	"github.com/san-kum/dropsim/internal/demo"
	"github.com/san-kum/dropsim/internal/engine/drivers"
	"github.com/san-kum/dropsim/internal/metrics"
	"github.com/san-kum/dropsim/internal/observe"
	"github.com/san-kum/dropsim/internal/storage"
	"github.com/san-kum/dropsim/internal/tui"
	"github.com/spf13/cobra"
)

const version = "0.3.0"

// defaultDataDir is where list and report look for the index when --data
// is not given. batch records into an index only when --data is set.
const defaultDataDir = ".dropsim"

var (
	dataDir string

	// batch
	runs        int
	frames      int
	seed        int64
	movie       bool
	verbose     bool
	blendFile   bool
	engineName  string
	blenderPath string
	configFile  string
	preset      string
	journal     bool
	dumpConfig  string

	// demo
	demoEngine string
	pythonPath string
	meshDir    string
	sceneFile  string
	pollEvery  time.Duration
	headless   bool
	withTUI    bool
	observeOn  string

	// report
	batchID int64
)

func main() {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(normalizeArgs(os.Args[1:], longFlags(rootCmd)))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dropsim",
		Short:         "rigid-body drop simulations driven through Blender and PyBullet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory for the batch index; batch records only when set (list and report default to "+defaultDataDir+")")

	batchCmd := &cobra.Command{
		Use:   "batch <infile> <parts> <outdir>",
		Short: "drop the parts <infile>_<i>.obj repeatedly from random orientations",
		Args:  cobra.ExactArgs(3),
		RunE:  runBatch,
	}
	batchCmd.Flags().IntVar(&runs, "runs", config.DefaultRuns, "number of runs, each from a new random orientation")
	batchCmd.Flags().IntVar(&frames, "frames", config.DefaultFrames, "frames per run; 60 frames are one simulated second")
	batchCmd.Flags().Int64Var(&seed, "seed", config.DefaultSeed, "random seed for the orientations")
	batchCmd.Flags().BoolVar(&movie, "movie", false, "render a movie per run")
	batchCmd.Flags().BoolVar(&verbose, "verbose", false, "report progress on stdout instead of the render log")
	batchCmd.Flags().BoolVar(&blendFile, "blendfile", false, "save a .blend snapshot of the scene")
	batchCmd.Flags().StringVar(&engineName, "engine", "blender", "scene engine (blender, dry)")
	batchCmd.Flags().StringVar(&blenderPath, "blender", "", "blender executable")
	batchCmd.Flags().StringVar(&configFile, "config", "", "tuning file (yaml)")
	batchCmd.Flags().StringVar(&preset, "preset", "", "use a named tuning preset")
	batchCmd.Flags().BoolVar(&journal, "journal", false, "write a compressed run journal")
	batchCmd.Flags().StringVar(&dumpConfig, "dump-config", "", "write the effective tuning to this file and exit")

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "interactive real-time demo",
		Args:  cobra.NoArgs,
		RunE:  runDemo,
	}
	demoCmd.Flags().StringVar(&demoEngine, "engine", "pybullet", "realtime engine (pybullet, dry)")
	demoCmd.Flags().StringVar(&pythonPath, "python", "", "python executable with pybullet installed")
	demoCmd.Flags().StringVar(&meshDir, "dir", ".", "directory the scene's mesh paths are relative to")
	demoCmd.Flags().StringVar(&sceneFile, "scene", "", "scene file (yaml)")
	demoCmd.Flags().DurationVar(&pollEvery, "poll", config.DefaultPollInterval, "keyboard poll interval")
	demoCmd.Flags().BoolVar(&headless, "headless", false, "run without a window")
	demoCmd.Flags().BoolVar(&withTUI, "tui", false, "show a terminal monitor")
	demoCmd.Flags().StringVar(&observeOn, "observe", "", "serve a websocket pose feed on this address")

	reportCmd := &cobra.Command{
		Use:   "report [dir]",
		Short: "summarize the runs of a batch",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReport,
	}
	reportCmd.Flags().Int64Var(&batchID, "batch", 0, "read runs of this batch from the index instead of a journal")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded batches",
		RunE:  listBatches,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list tuning presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("presets:")
			for _, p := range config.ListPresets() {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	enginesCmd := &cobra.Command{
		Use:   "engines",
		Short: "list engine drivers",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := drivers.NewRegistry()
			fmt.Println("batch scenes:")
			for _, name := range reg.ListScenes() {
				fmt.Printf("  %s\n", name)
			}
			fmt.Println("realtime sessions:")
			for _, name := range reg.ListRealtimes() {
				fmt.Printf("  %s\n", name)
			}
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dropsim %s\n", version)
		},
	}

	rootCmd.AddCommand(batchCmd, demoCmd, reportCmd, listCmd, presetsCmd, enginesCmd, versionCmd)
	return rootCmd
}

// indexDir is the index location for reading commands.
func indexDir() string {
	if dataDir == "" {
		return defaultDataDir
	}
	return dataDir
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// batchTuning layers the tuning: defaults, then preset, then the config
// file decoded over it, then flags that were set explicitly.
func batchTuning(cmd *cobra.Command) (*config.Batch, error) {
	tune := config.DefaultBatch()
	if preset != "" {
		tune = config.GetPreset(preset)
		if tune == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		cfg, err := config.LoadBatchOnto(configFile, tune)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		tune = cfg
	}
	if cmd.Flags().Changed("runs") {
		tune.Runs = runs
	}
	if cmd.Flags().Changed("frames") {
		tune.Frames = frames
	}
	if cmd.Flags().Changed("seed") {
		tune.Seed = seed
	}
	return tune, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	parts, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("parts: %w", err)
	}

	tune, err := batchTuning(cmd)
	if err != nil {
		return err
	}
	if dumpConfig != "" {
		return config.SaveBatch(dumpConfig, tune)
	}

	opts := batch.DefaultOptions(args[0], parts, args[2])
	opts.Runs = tune.Runs
	opts.Frames = tune.Frames
	opts.Seed = tune.Seed
	opts.Movie = movie
	opts.Verbose = verbose
	opts.BlendFile = blendFile
	opts.Tuning = tune
	opts.Journal = journal
	opts.Console = os.Stdout
	opts.Engine = engineName

	if dataDir != "" {
		idx, err := storage.OpenIndex(dataDir)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		opts.Recorder = idx
	}

	scene, err := drivers.NewRegistry().Scene(engineName, drivers.Options{
		Binary:    blenderPath,
		Output:    os.Stdout,
		Artifacts: true,
	})
	if err != nil {
		return err
	}
	defer scene.Close()

	ctx, stop := signalContext()
	defer stop()

	report, err := batch.Run(ctx, scene, opts)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Printf("%d runs written to %s\n", len(report.Runs), report.Dir)
	}
	return nil
}

func runDemo(cmd *cobra.Command, args []string) error {
	scene := config.DefaultScene()
	if sceneFile != "" {
		s, err := config.LoadScene(sceneFile)
		if err != nil {
			return fmt.Errorf("failed to load scene: %w", err)
		}
		scene = s
	}
	if cmd.Flags().Changed("poll") {
		scene.PollInterval = pollEvery
	}

	// the monitor owns the terminal while it runs
	var console io.Writer = os.Stdout
	if withTUI {
		console = io.Discard
	}
	logger := log.New(console, "[demo] ", log.LstdFlags|log.Lmicroseconds)

	rt, err := drivers.NewRegistry().Realtime(demoEngine, drivers.Options{
		Binary:   pythonPath,
		Dir:      meshDir,
		Headless: headless,
		Output:   console,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signalContext()
	defer stop()

	var observers []demo.Observer
	if observeOn != "" {
		names := make([]string, len(scene.Objects))
		for i, o := range scene.Objects {
			names[i] = o.Name
		}
		hub := observe.NewHub(logger)
		defer hub.Close()
		srv := &http.Server{Addr: observeOn, Handler: hub.Mux(names)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("observer: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Printf("pose feed on ws://%s/ws", observeOn)
		observers = append(observers, hub)
	}

	if !withTUI {
		return demo.Run(ctx, rt, scene, demo.Options{Logger: logger, Observers: observers})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.NewMonitor("dropsim demo"), tea.WithAltScreen())
	feed := tui.NewFeed(p)
	done := make(chan error, 1)
	go func() {
		err := demo.Run(ctx, rt, scene, demo.Options{Logger: logger, Observers: append(observers, feed)})
		feed.Done(err)
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return err
	}
	cancel()
	return <-done
}

func runReport(cmd *cobra.Command, args []string) error {
	var (
		recs   []storage.RunRecord
		source string
		err    error
	)
	switch {
	case batchID != 0:
		idx, err := storage.OpenIndex(indexDir())
		if err != nil {
			return err
		}
		defer idx.Close()
		recs, err = idx.Runs(context.Background(), batchID)
		if err != nil {
			return err
		}
		source = fmt.Sprintf("batch %d", batchID)
	case len(args) == 1:
		source = filepath.Join(args[0], storage.JournalFileName)
		recs, err = storage.ReadJournal(source)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("need a batch output directory or --batch")
	}

	if len(recs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	fmt.Println(tui.Title.Render("runs from " + source))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tANGLE\tAXIS\tLIFT\tMIN_Z\tMOVIE")
	lifts := make([]float64, len(recs))
	for i, r := range recs {
		lifts[i] = r.Offset
		mv := r.Movie
		if mv == "" {
			mv = "-"
		}
		fmt.Fprintf(w, "%d\t%.4f\t(%.3f, %.3f, %.3f)\t%.3f\t%.3f\t%s\n",
			r.Run, r.Angle, r.Axis[0], r.Axis[1], r.Axis[2], r.Offset, r.BoundsMin[2], mv)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	ms := metrics.Default()
	summary := metrics.Summarize(recs, ms...)
	for _, m := range ms {
		fmt.Printf("%s %s\n", tui.Label.Render(fmt.Sprintf("%-15s", m.Name())), tui.Value.Render(fmt.Sprintf("%.4f", summary[m.Name()])))
	}

	if len(lifts) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(lifts,
			asciigraph.Height(10),
			asciigraph.Width(60),
			asciigraph.Caption("lift offset per run"),
		))
	}
	return nil
}

func listBatches(cmd *cobra.Command, args []string) error {
	idx, err := storage.OpenIndex(indexDir())
	if err != nil {
		return err
	}
	defer idx.Close()

	batches, err := idx.Batches(context.Background())
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println("no batches found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINFILE\tPARTS\tRUNS\tFRAMES\tENGINE\tSTATUS\tSTARTED")
	for _, b := range batches {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d/%d\t%d\t%s\t%s\t%s\n",
			b.ID,
			b.Infile,
			b.Parts,
			b.Completed, b.Runs,
			b.Frames,
			b.Engine,
			b.Status,
			b.StartedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}
