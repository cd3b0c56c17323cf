package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/ktune/internal/align"
	"github.com/san-kum/ktune/internal/config"
	"github.com/san-kum/ktune/internal/harness"
	"github.com/san-kum/ktune/internal/metrics"
	"github.com/san-kum/ktune/internal/storage"
	"github.com/san-kum/ktune/internal/telemetry"
	"github.com/san-kum/ktune/internal/transport"
	"github.com/san-kum/ktune/internal/viz"
)

var (
	dataDir  string
	logLevel string

	name       string
	testName   string
	actuatorID int
	simAddr    string
	realAddr   string
	noSim      bool
	noReal     bool
	serialDev  string
	baudRate   uint

	freq   float64
	amp    float64
	center float64

	stepSize  float64
	stepHold  float64
	stepCount int

	initFreq  float64
	sweepRate float64

	duration   float64
	sampleRate float64
	logPad     float64

	kp           float64
	kd           float64
	ki           float64
	simKp        float64
	simKv        float64
	acceleration float64
	maxTorque    float64
	torqueOff    bool

	telemetryBroker string
	telemetryTopic  string
	noLog           bool

	configFile string
	preset     string
)

var log = logrus.WithField("component", "ktune")

func main() {
	rootCmd := &cobra.Command{
		Use:   "ktune",
		Short: "actuator response testing on simulator and robot",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			lvl, err := logrus.ParseLevel(logLevel)
			if err != nil {
				lvl = logrus.InfoLevel
			}
			logrus.SetLevel(lvl)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".ktune", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a test against the configured targets",
		RunE:  runTest,
	}
	addTestFlags(runCmd)

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a test with a live terminal view",
		RunE:  runLive,
	}
	addTestFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id] [target]",
		Short: "export one recorded series to CSV on stdout",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata to JSON on stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list preset test setups",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range config.ListPresets() {
				fmt.Println(p)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, exportCSVCmd, exportJSONCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addTestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&name, "name", config.DefaultName, "run name")
	cmd.Flags().StringVar(&testName, "test", config.DefaultTest, "test waveform (sine, step, chirp)")
	cmd.Flags().IntVar(&actuatorID, "actuator-id", config.DefaultActuatorID, "actuator id")
	cmd.Flags().StringVar(&simAddr, "sim-ip", config.DefaultSimAddr, "simulator address")
	cmd.Flags().StringVar(&realAddr, "ip", config.DefaultRealAddr, "robot address")
	cmd.Flags().BoolVar(&noSim, "no-sim", false, "skip the simulator target")
	cmd.Flags().BoolVar(&noReal, "no-real", false, "skip the robot target")
	cmd.Flags().StringVar(&serialDev, "serial", "", "serial device for the robot (overrides --ip)")
	cmd.Flags().UintVar(&baudRate, "baud", 115200, "serial baud rate")

	cmd.Flags().Float64Var(&freq, "freq", config.DefaultFreq, "sine frequency (hz)")
	cmd.Flags().Float64Var(&amp, "amp", config.DefaultAmp, "amplitude (degrees)")
	cmd.Flags().Float64Var(&center, "center", 0, "sine center position (degrees)")

	cmd.Flags().Float64Var(&stepSize, "step-size", config.DefaultStepSize, "step size (degrees)")
	cmd.Flags().Float64Var(&stepHold, "step-hold-time", config.DefaultStepHold, "hold time per step (s)")
	cmd.Flags().IntVar(&stepCount, "step-count", config.DefaultStepCount, "number of step cycles")

	cmd.Flags().Float64Var(&initFreq, "init-freq", config.DefaultInitFreq, "chirp initial frequency (hz)")
	cmd.Flags().Float64Var(&sweepRate, "sweep-rate", config.DefaultSweepRate, "chirp sweep rate (hz/s)")

	cmd.Flags().Float64Var(&duration, "duration", config.DefaultDuration, "test duration (s)")
	cmd.Flags().Float64Var(&sampleRate, "sample-rate", config.DefaultSampleRate, "sample rate (hz)")
	cmd.Flags().Float64Var(&logPad, "log-pad", config.DefaultLogPad, "extra sampling after the test (s)")

	cmd.Flags().Float64Var(&kp, "kp", config.DefaultKp, "robot position gain")
	cmd.Flags().Float64Var(&kd, "kd", config.DefaultKd, "robot damping gain")
	cmd.Flags().Float64Var(&ki, "ki", config.DefaultKi, "robot integral gain")
	cmd.Flags().Float64Var(&simKp, "sim-kp", config.DefaultSimKp, "simulator position gain")
	cmd.Flags().Float64Var(&simKv, "sim-kv", config.DefaultSimKv, "simulator velocity gain")
	cmd.Flags().Float64Var(&acceleration, "acceleration", config.DefaultAcceleration, "acceleration limit")
	cmd.Flags().Float64Var(&maxTorque, "max-torque", config.DefaultMaxTorque, "torque limit")
	cmd.Flags().BoolVar(&torqueOff, "torque-off", false, "leave torque disabled")

	cmd.Flags().StringVar(&telemetryBroker, "telemetry", "", "mqtt broker url for live sample telemetry")
	cmd.Flags().StringVar(&telemetryTopic, "telemetry-topic", "ktune/samples", "mqtt topic prefix")
	cmd.Flags().BoolVar(&noLog, "no-log", false, "do not record the run")

	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use a preset test setup")
}

// buildConfig folds an optional config file under the flags. Flags the
// user set explicitly win over file values.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	fromFile := false
	switch {
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		fromFile = true
	case preset != "":
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		fromFile = true
	}

	set := func(flag string, apply func()) {
		if !fromFile || cmd.Flags().Changed(flag) {
			apply()
		}
	}
	set("name", func() { cfg.Name = name })
	set("test", func() { cfg.Test = testName })
	set("actuator-id", func() { cfg.ActuatorID = actuatorID })
	set("sim-ip", func() { cfg.SimAddr = simAddr })
	set("ip", func() { cfg.RealAddr = realAddr })
	set("freq", func() { cfg.Sine.Freq = freq })
	set("amp", func() { cfg.Sine.Amp = amp; cfg.Chirp.Amp = amp })
	set("center", func() { cfg.Sine.Center = center })
	set("step-size", func() { cfg.Step.Size = stepSize })
	set("step-hold-time", func() { cfg.Step.Hold = stepHold })
	set("step-count", func() { cfg.Step.Count = stepCount })
	set("init-freq", func() { cfg.Chirp.InitFreq = initFreq })
	set("sweep-rate", func() { cfg.Chirp.SweepRate = sweepRate })
	set("duration", func() { cfg.Duration = duration })
	set("sample-rate", func() { cfg.SampleRate = sampleRate })
	set("log-pad", func() { cfg.LogPad = logPad })
	set("kp", func() { cfg.Gains.Kp = kp })
	set("kd", func() { cfg.Gains.Kd = kd })
	set("ki", func() { cfg.Gains.Ki = ki })
	set("sim-kp", func() { cfg.Gains.SimKp = simKp })
	set("sim-kv", func() { cfg.Gains.SimKv = simKv })
	set("acceleration", func() { cfg.Gains.Acceleration = acceleration })
	set("max-torque", func() { cfg.Gains.MaxTorque = maxTorque })
	set("torque-off", func() { cfg.Gains.TorqueOff = torqueOff })
	set("telemetry", func() { cfg.Telemetry.Broker = telemetryBroker })
	set("telemetry-topic", func() { cfg.Telemetry.Topic = telemetryTopic })
	return cfg, nil
}

// dialTargets connects whichever sides are enabled. A side that fails
// to connect is logged and dropped; the runner decides whether enough
// targets remain.
func dialTargets(cfg *config.Config) (sim, real *harness.Target) {
	if !noSim {
		client, err := transport.DialKOS(cfg.SimAddr)
		if err != nil {
			log.WithError(err).WithField("addr", cfg.SimAddr).Warn("simulator unreachable")
		} else {
			sim = &harness.Target{
				Client:     client,
				ActuatorID: cfg.ActuatorID,
				Config:     cfg.SimActuatorConfig(),
			}
		}
	}
	if !noReal {
		var client harness.Client
		var err error
		if serialDev != "" {
			client, err = transport.OpenSerial(serialDev, baudRate)
		} else {
			client, err = transport.DialKOS(cfg.RealAddr)
		}
		if err != nil {
			log.WithError(err).WithField("addr", cfg.RealAddr).Warn("robot unreachable")
		} else {
			real = &harness.Target{
				Client:     client,
				ActuatorID: cfg.ActuatorID,
				Config:     cfg.RealActuatorConfig(),
			}
		}
	}
	return sim, real
}

func closeTargets(targets ...*harness.Target) {
	for _, t := range targets {
		if t == nil {
			continue
		}
		if c, ok := t.Client.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				log.WithError(err).Debug("close target")
			}
		}
	}
}

func runTest(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	spec := cfg.Spec()
	if err := spec.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, real := dialTargets(cfg)
	defer closeTargets(sim, real)

	runner := harness.NewRunner()

	var pub *telemetry.Publisher
	if cfg.Telemetry.Broker != "" {
		pub, err = telemetry.NewPublisher(cfg.Telemetry.Broker,
			fmt.Sprintf("ktune-%d", time.Now().Unix()), cfg.Telemetry.Topic)
		if err != nil {
			return err
		}
		defer pub.Close()
		runner.AddObserver(pub)
	}

	log.WithFields(logrus.Fields{
		"test":     spec.Kind,
		"actuator": cfg.ActuatorID,
		"duration": spec.Duration,
		"rate":     spec.SampleRate,
	}).Info("starting run")

	result, err := runner.Run(ctx, spec, sim, real)
	if err != nil {
		return err
	}

	return report(cfg, result)
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	spec := cfg.Spec()
	if err := spec.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, real := dialTargets(cfg)
	defer closeTargets(sim, real)

	feed := viz.NewFeed()
	runner := harness.NewRunner()
	runner.AddObserver(feed)

	title := fmt.Sprintf("%s %s, actuator %d", cfg.Name, spec.Kind, cfg.ActuatorID)
	prog := tea.NewProgram(viz.NewModel(title, feed))

	run := startRun(ctx, runner, spec, sim, real, feed.Finish)

	if _, err := prog.Run(); err != nil {
		stop()
		run.wait()
		return err
	}
	stop() // quitting the view cancels a run still in flight
	result, err := run.wait()
	if err != nil {
		return err
	}
	return report(cfg, result)
}

// asyncRun executes the harness in the background so the live view
// owns the terminal while samples stream in.
type asyncRun struct {
	result *harness.Result
	err    error
	done   chan struct{}
}

func startRun(ctx context.Context, runner *harness.Runner, spec harness.Spec, sim, real *harness.Target, onDone func()) *asyncRun {
	a := &asyncRun{done: make(chan struct{})}
	go func() {
		a.result, a.err = runner.Run(ctx, spec, sim, real)
		close(a.done)
		if onDone != nil {
			onDone()
		}
	}()
	return a
}

// wait joins the run goroutine. Quitting the view early only cancels
// the run; the result must not be read until the goroutine is done.
func (a *asyncRun) wait() (*harness.Result, error) {
	<-a.done
	return a.result, a.err
}

// report computes metrics, persists the run unless disabled, and
// prints the summary and plots.
func report(cfg *config.Config, result *harness.Result) error {
	spec := result.Spec
	vals := make(map[string]float64)
	step := make(map[string]*metrics.StepResult)

	for _, s := range []*harness.Series{result.Sim, result.Real} {
		if s == nil || s.Len() == 0 {
			continue
		}
		vals[s.Target+"_rms_error"] = metrics.RMSError(s)
		vals[s.Target+"_peak_error"] = metrics.PeakError(s)
		if spec.Kind == harness.KindStep {
			sr := metrics.StepResponse(s, spec, metrics.DefaultSettleTolerance)
			step[s.Target] = sr
			vals[s.Target+"_max_overshoot_pct"] = sr.MaxOvershoot()
		}
	}

	if !noLog {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(cfg.Name, cfg.ActuatorID, result, vals)
		if err != nil {
			return err
		}
		log.WithField("run", runID).Info("run recorded")
	}

	fmt.Println(viz.Summary(result, cfg.ActuatorID, step))
	for _, s := range []*harness.Series{result.Sim, result.Real} {
		if s == nil || s.Len() == 0 {
			continue
		}
		fmt.Println(viz.SeriesPlot(s))
	}
	if result.Sim.Len() > 0 && result.Real.Len() > 0 {
		fmt.Println(viz.ComparisonPlot(align.Merge(result.Sim, result.Real)))
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTEST\tTIME\tDURATION\tRATE\tTARGETS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2fs\t%.0fhz\t%d\n",
			run.ID,
			run.Name,
			run.Spec.Kind,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Spec.Duration,
			run.Spec.SampleRate,
			len(run.Targets),
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("test: %s\n\n", meta.Spec.Kind)

	loaded := make([]*harness.Series, 0, len(meta.Targets))
	for _, target := range meta.Targets {
		series, err := st.LoadSeries(runID, target)
		if err != nil {
			return err
		}
		loaded = append(loaded, series)
		fmt.Println(viz.SeriesPlot(series))
	}
	if len(loaded) == 2 {
		fmt.Println(viz.ComparisonPlot(align.Merge(loaded[0], loaded[1])))
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	target := harness.TargetSim
	if len(args) > 1 {
		target = args[1]
	} else if len(meta.Targets) == 1 {
		target = meta.Targets[0]
	}

	series, err := st.LoadSeries(runID, target)
	if err != nil {
		return err
	}

	w := csv.NewWriter(os.Stdout)
	if err := w.Write(storage.CSVHeader); err != nil {
		return err
	}
	for _, s := range series.Samples {
		rec := []string{
			strconv.FormatFloat(s.T, 'f', 6, 64),
			strconv.FormatFloat(s.CmdPos, 'f', 6, 64),
			strconv.FormatFloat(s.CmdVel, 'f', 6, 64),
			strconv.FormatFloat(s.MeasPos, 'f', 6, 64),
			strconv.FormatFloat(s.MeasVel, 'f', 6, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}
