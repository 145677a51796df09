package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/aidenletourneau/forcemotion/internal/config"
	"github.com/aidenletourneau/forcemotion/internal/integrator"
	"github.com/aidenletourneau/forcemotion/internal/models"
	"github.com/aidenletourneau/forcemotion/internal/physics"
	"github.com/aidenletourneau/forcemotion/internal/preset"
	"github.com/aidenletourneau/forcemotion/internal/simulation"
	"github.com/aidenletourneau/forcemotion/internal/syncclient"
	"github.com/aidenletourneau/forcemotion/internal/viz"
	"github.com/spf13/cobra"
)

var (
	configFile string
	relayURL   string
	fps        int
	mass       float64
	force      float64
	friction   float64
	play       bool
	duration   time.Duration
	every      time.Duration
	frames     int
	presetFile string
	presetName string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "forcesim",
		Short: "force & motion simulation client",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "client config YAML")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "join the relay and simulate live",
		RunE:  runLive,
	}
	runCmd.Flags().StringVar(&relayURL, "relay", "", "relay websocket URL (overrides config)")
	runCmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = until interrupted)")
	runCmd.Flags().DurationVar(&every, "every", time.Second, "readout interval")
	addConfigFlags(runCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "simulate offline and chart the history",
		RunE:  runOffline,
	}
	simulateCmd.Flags().IntVar(&frames, "frames", 300, "frames to simulate")
	addConfigFlags(simulateCmd)

	presetsCmd := &cobra.Command{
		Use:   "presets [file]",
		Short: "list presets in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  listPresets,
	}

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write the default client config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SaveClient(args[0], config.DefaultClient()); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, simulateCmd, presetsCmd, initCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&fps, "fps", 0, "frames per second (overrides config)")
	cmd.Flags().Float64Var(&mass, "mass", models.DefaultMass, "block mass (kg)")
	cmd.Flags().Float64Var(&force, "force", models.DefaultForce, "applied force (N)")
	cmd.Flags().Float64Var(&friction, "friction", models.DefaultFriction, "friction coefficient")
	cmd.Flags().BoolVar(&play, "play", false, "start playing immediately")
	cmd.Flags().StringVar(&presetFile, "preset-file", "", "preset YAML file")
	cmd.Flags().StringVar(&presetName, "preset", "", "preset name to start from (needs --preset-file)")
}

func loadClientConfig(cmd *cobra.Command) (config.Client, error) {
	cfg := config.DefaultClient()
	if configFile != "" {
		var err error
		if cfg, err = config.LoadClient(configFile); err != nil {
			return cfg, err
		}
	}
	if cmd.Flags().Changed("relay") {
		cfg.RelayURL = relayURL
	}
	if cmd.Flags().Changed("fps") {
		cfg.FPS = fps
	}
	return cfg, cfg.Validate()
}

// applyFlags pushes the configuration flags into the store. Only flags that were set
// are applied, so a live session keeps whatever the relay sent unless told otherwise.
func applyFlags(cmd *cobra.Command, store *simulation.Store) error {
	if presetName != "" {
		if presetFile == "" {
			return fmt.Errorf("--preset needs --preset-file")
		}
		m := preset.NewManager()
		if err := m.LoadFile(presetFile); err != nil {
			return err
		}
		p, err := m.Get(presetName)
		if err != nil {
			return err
		}
		store.SetMass(p.Config.Mass)
		store.SetForce(p.Config.Force)
		store.SetFriction(p.Config.Friction)
		store.SetPlaying(p.Config.IsPlaying)
	}

	if cmd.Flags().Changed("mass") {
		store.SetMass(mass)
	}
	if cmd.Flags().Changed("force") {
		store.SetForce(force)
	}
	if cmd.Flags().Changed("friction") {
		store.SetFriction(friction)
	}
	if play {
		store.SetPlaying(true)
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	store := simulation.NewStore(cfg.History)
	engine := physics.NewSlidingBlock(store.Config().Mass, store.Config().Friction)
	integ := integrator.New(store, engine)

	adapter := syncclient.New(store, syncclient.Options{
		URL:          cfg.RelayURL,
		ReconnectMin: cfg.ReconnectMin,
		ReconnectMax: cfg.ReconnectMax,
	})
	defer adapter.Close()

	// Flag edits are published on join and win over the relay's snapshot
	if err := applyFlags(cmd, store); err != nil {
		return err
	}
	runDone := make(chan struct{})
	go func() {
		adapter.Run(ctx)
		close(runDone)
	}()
	defer func() { <-runDone }()

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				printReadout(store, integ.Elapsed(), adapter.Status())
			}
		}
	}()

	loop := integrator.NewLoop(integ, cfg.FPS)
	n := loop.Run(ctx)

	fmt.Printf("\n%d frames\n", n)
	printReadout(store, integ.Elapsed(), adapter.Status())
	fmt.Println(viz.Charts(store.History(), cfg.ChartWidth, cfg.ChartHeight))
	return nil
}

func printReadout(store *simulation.Store, elapsed float64, st syncclient.Status) {
	fmt.Println(viz.Readout(store.Config(), store.LiveData(), elapsed))
	link := "offline"
	if st.Connected {
		link = "online"
	}
	fmt.Printf("relay %s  sent=%d applied=%d ignored=%d reconnects=%d", link, st.Sent, st.Applied, st.Ignored, st.Reconnects)
	if st.LastError != "" {
		fmt.Printf("  last error: %s", st.LastError)
	}
	fmt.Println()
}

func runOffline(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig(cmd)
	if err != nil {
		return err
	}

	store := simulation.NewStore(cfg.History)
	if err := applyFlags(cmd, store); err != nil {
		return err
	}
	store.SetPlaying(true)

	// Virtual clock so elapsed time matches the simulated frames
	step := time.Second / time.Duration(cfg.FPS)
	clock := time.Unix(0, 0)
	engine := physics.NewSlidingBlock(store.Config().Mass, store.Config().Friction)
	integ := integrator.New(store, engine, integrator.WithClock(func() time.Time { return clock }))

	for i := 0; i < frames; i++ {
		integ.Tick(step.Seconds())
		clock = clock.Add(step)
	}

	fmt.Println(viz.Readout(store.Config(), store.LiveData(), integ.Elapsed()))
	fmt.Println(viz.Charts(store.History(), cfg.ChartWidth, cfg.ChartHeight))
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	m := preset.NewManager()
	if err := m.LoadFile(args[0]); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMASS\tFORCE\tFRICTION\tPLAYING\tDESCRIPTION")
	for _, p := range m.List() {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%v\t%s\n", p.Name, p.Config.Mass, p.Config.Force, p.Config.Friction, p.Config.IsPlaying, p.Description)
	}
	return w.Flush()
}
