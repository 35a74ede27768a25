package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rewired-gh/motorguard/internal/config"
	"github.com/rewired-gh/motorguard/internal/features"
	"github.com/rewired-gh/motorguard/internal/logger"
	"github.com/rewired-gh/motorguard/internal/models"
	"github.com/rewired-gh/motorguard/internal/monitor"
	"github.com/rewired-gh/motorguard/internal/observability"
	"github.com/rewired-gh/motorguard/internal/predictor"
	"github.com/rewired-gh/motorguard/internal/scheduler"
	"github.com/rewired-gh/motorguard/internal/scoring"
	"github.com/rewired-gh/motorguard/internal/server"
	"github.com/rewired-gh/motorguard/internal/storage"
	"github.com/rewired-gh/motorguard/internal/telegram"
)

const usage = `usage: motorguard <command> [flags] [input]

commands:
  predict   score a JSON batch of readings and print the failure probability
  serve     run the HTTP API, live feed and periodic risk check
  ingest    store a JSON batch of readings`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "predict":
		err = runPredict(os.Args[2:], os.Stdin, os.Stdout)
	case "serve":
		err = runServe(os.Args[2:])
	case "ingest":
		err = runIngest(os.Args[2:], os.Stdin)
	case "-h", "--help", "help":
		fmt.Fprintln(os.Stderr, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		logger.Fatal("%v", err)
	}
}

type commonFlags struct {
	configPath string
	modelPath  string
	inputPath  string
}

func parseFlags(name string, args []string, defaultConfig string) (*flag.FlagSet, *commonFlags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", defaultConfig, "Path to configuration file (empty for defaults and environment only)")
	fs.StringVar(&cf.modelPath, "model", "", "Path to the model artifact, overrides model.path")
	fs.StringVar(&cf.inputPath, "input", "", "Read the JSON batch from this file instead of the argument or standard input")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return fs, cf, nil
}

// setup loads and validates configuration and initializes the logger.
func setup(cf *commonFlags) (*config.Config, error) {
	cfg, err := config.Load(cf.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cf.modelPath != "" {
		cfg.Model.Path = cf.modelPath
		cfg.Model.Kind = "local"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if cf.configPath != "" {
		logger.Debug("Configuration loaded from %s", cf.configPath)
	}
	return cfg, nil
}

func newScorer(cfg config.ModelConfig) (scoring.Scorer, error) {
	if cfg.Kind == "remote" {
		remote, err := scoring.NewRemoteScorer(cfg.RemoteURL, cfg.Timeout, cfg.MaxRetries, cfg.RetryDelayBase)
		if err != nil {
			return nil, err
		}
		logger.Info("Using remote model at %s", cfg.RemoteURL)
		return remote, nil
	}
	model, err := scoring.LoadModel(cfg.Path)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded %s model from %s", model.Kind(), cfg.Path)
	return model, nil
}

func newPredictor(cfg *config.Config) (*predictor.Predictor, error) {
	scorer, err := newScorer(cfg.Model)
	if err != nil {
		return nil, err
	}
	pipeline, err := features.NewPipeline(cfg.Features.RollingWindow, nil)
	if err != nil {
		return nil, err
	}
	return predictor.New(pipeline, scorer), nil
}

// readInput returns the batch from -input, the first positional argument,
// or standard input, in that order. "-" means standard input.
func readInput(inputPath string, positional []string, stdin io.Reader) ([]byte, error) {
	switch {
	case inputPath != "" && inputPath != "-":
		data, err := os.ReadFile(inputPath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read input file: %v", features.ErrInput, err)
		}
		return data, nil
	case inputPath == "" && len(positional) > 0 && positional[0] != "-":
		return []byte(positional[0]), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read standard input: %v", features.ErrInput, err)
		}
		return data, nil
	}
}

// runPredict scores one batch. The model is loaded before any input is read.
// Nothing is written to stdout unless the prediction succeeded.
func runPredict(args []string, stdin io.Reader, stdout io.Writer) error {
	fs, cf, err := parseFlags("predict", args, "")
	if err != nil {
		return err
	}
	cfg, err := setup(cf)
	if err != nil {
		return err
	}

	pred, err := newPredictor(cfg)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	data, err := readInput(cf.inputPath, fs.Args(), stdin)
	if err != nil {
		return err
	}

	result, err := pred.PredictJSON(context.Background(), data)
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(out))
	return err
}

// runIngest stores a batch of raw records as readings.
func runIngest(args []string, stdin io.Reader) error {
	fs, cf, err := parseFlags("ingest", args, "configs/config.yaml")
	if err != nil {
		return err
	}
	cfg, err := setup(cf)
	if err != nil {
		return err
	}

	data, err := readInput(cf.inputPath, fs.Args(), stdin)
	if err != nil {
		return err
	}
	records, err := features.ParseRecords(data)
	if err != nil {
		return err
	}
	series, err := features.LoadSeries(records)
	if err != nil {
		return err
	}
	clean := features.Clean(series)

	store, err := storage.New(cfg.Storage.MaxReadings, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	readings := make([]*models.Reading, clean.Len())
	for i := range readings {
		readings[i] = &models.Reading{Temperature: clean.Temperature[i], Timestamp: clean.Timestamps[i]}
	}
	if err := store.AddReadings(readings); err != nil {
		return fmt.Errorf("failed to store readings: %w", err)
	}
	logger.Info("Ingested %d readings into %s", len(readings), cfg.Storage.DBPath)
	return nil
}

func runServe(args []string) error {
	_, cf, err := parseFlags("serve", args, "configs/config.yaml")
	if err != nil {
		return err
	}
	cfg, err := setup(cf)
	if err != nil {
		return err
	}

	pred, err := newPredictor(cfg)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	store, err := storage.New(cfg.Storage.MaxReadings, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	var telegramClient *telegram.Client
	var alertNotifier monitor.Notifier
	var statusNotifier scheduler.StatusNotifier
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		alertNotifier = telegramClient
		statusNotifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	mon := monitor.New(store, alertNotifier, monitor.Config{
		HighTempThreshold:   cfg.Alerts.HighTempThreshold,
		MediumTempThreshold: cfg.Alerts.MediumTempThreshold,
		RiskThreshold:       cfg.Alerts.RiskThreshold,
		Cooldown:            cfg.Alerts.Cooldown,
	})
	metrics := observability.NewMetrics("")

	srv := server.New(server.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		HistoryLimit:   cfg.Storage.HistoryLimit,
		MinHistory:     cfg.Alerts.MinHistory,
	}, store, mon, pred, metrics)

	sched := scheduler.New(scheduler.Config{
		Interval:     cfg.Alerts.CheckInterval,
		HistoryLimit: cfg.Storage.HistoryLimit,
		MinHistory:   cfg.Alerts.MinHistory,
	}, store, pred, mon, statusNotifier, metrics)
	sched.OnAlert(srv.BroadcastAlert)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, func() string { return statusText(store, sched.Status()) })
	}

	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	logger.Info("Starting motorguard (addr: %s, high threshold: %.1f°C, risk threshold: %.2f, check interval: %v)",
		cfg.Server.Addr, cfg.Alerts.HighTempThreshold, cfg.Alerts.RiskThreshold, cfg.Alerts.CheckInterval)

	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		return err
	}
	logger.Info("Service stopped")
	return nil
}

// statusText renders the reply to the /status bot command.
func statusText(store *storage.Storage, st scheduler.Status) string {
	var b strings.Builder
	b.WriteString("motorguard status\n")

	latest, err := store.LatestReading()
	switch {
	case err != nil:
		fmt.Fprintf(&b, "latest reading: error (%v)\n", err)
	case latest == nil:
		b.WriteString("latest reading: none\n")
	default:
		fmt.Fprintf(&b, "latest reading: %.1f°C at %s\n", latest.Temperature, latest.Timestamp.Format("2006-01-02 15:04:05 UTC"))
	}

	if st.LastRun.IsZero() {
		b.WriteString("risk check: not run yet\n")
		return b.String()
	}
	if st.LastProbability != nil {
		fmt.Fprintf(&b, "failure probability: %.1f%%\n", *st.LastProbability*100)
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, "last risk check failed (%d in a row): %s\n", st.ConsecutiveFailures, st.LastError)
	}
	fmt.Fprintf(&b, "last risk check: %s\n", st.LastRun.UTC().Format("2006-01-02 15:04:05 UTC"))
	return b.String()
}
