// Package cli implements the sofie CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/sofie/internal/chain"
	"github.com/rcliao/sofie/internal/config"
	"github.com/rcliao/sofie/internal/identity"
	"github.com/rcliao/sofie/internal/liveness"
	"github.com/rcliao/sofie/internal/logging"
	"github.com/rcliao/sofie/internal/pattern"
	"github.com/rcliao/sofie/internal/sofie"
	"github.com/rcliao/sofie/internal/store"
	"github.com/rcliao/sofie/internal/synth"
	"github.com/rcliao/sofie/internal/telemetry"
)

var (
	configPath  string
	dbPath      string
	backendFlag string
	formatFlag  string
	verbose     bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "sofie",
	Short: "Operator pipeline with continuity memory",
	Long: "SOFIE runs every message through Source, Origin, Force, Intelligence and Eternal.\n" +
		"Memory and liveness history persist between sessions.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config path (default: $SOFIE_CONFIG or ~/.sofie/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path or URL (overrides config)")
	RootCmd.PersistentFlags().StringVarP(&backendFlag, "backend", "b", "", "Backend: sqlite, postgres, file, none (overrides config)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DatabaseURL = dbPath
	}
	if backendFlag != "" {
		cfg.Backend = backendFlag
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// session holds one wired orchestrator and the resources behind it.
type session struct {
	cfg     *config.Config
	log     *zap.Logger
	backend store.Backend
	tracing *telemetry.Provider
	orch    *sofie.Orchestrator
}

func (s *session) Close() {
	if err := s.backend.Close(); err != nil {
		s.log.Warn("close backend", zap.Error(err))
	}
	if err := s.tracing.Shutdown(context.Background()); err != nil {
		s.log.Warn("flush traces", zap.Error(err))
	}
	_ = s.log.Sync()
}

func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return store.NewSQLiteBackend(cfg.DatabaseURL)
	case config.BackendPostgres:
		return store.NewPostgresBackend(ctx, cfg.DatabaseURL)
	case config.BackendFile:
		return store.NewFileBackend(cfg.DatabaseURL)
	default:
		return store.NopBackend{}, nil
	}
}

func openSynth(ctx context.Context, cfg *config.Config, profile identity.Profile) (synth.Synthesizer, error) {
	if cfg.Synth.Provider != config.SynthGenAI {
		// nil selects the canned synthesizer
		return nil, nil
	}
	return synth.NewGenAI(ctx, cfg.Synth.APIKey,
		synth.WithModel(cfg.Synth.Model),
		synth.WithSystemInstruction(synth.SystemPrompt(profile)),
	)
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		JSON:        cfg.Log.JSON,
	})
	if err != nil {
		return nil, err
	}

	tracing, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		_ = tracing.Shutdown(ctx)
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	s := &session{cfg: cfg, log: log, backend: backend, tracing: tracing}

	profile := identity.DefaultProfile()
	if len(cfg.Identity.Forbidden) > 0 {
		profile.Forbidden = append([]string(nil), cfg.Identity.Forbidden...)
	}

	patterns, err := pattern.NewCache(pattern.WithCapacity(cfg.PatternCacheSize), pattern.WithLogger(log))
	if err != nil {
		s.Close()
		return nil, err
	}
	syn, err := openSynth(ctx, cfg, profile)
	if err != nil {
		s.Close()
		return nil, err
	}

	orch, err := sofie.New(sofie.Components{
		Store: store.NewMemoryStore(
			store.WithBackend(backend),
			store.WithCaps(cfg.Memory.HardCap, cfg.Memory.SoftCap),
			store.WithRecallLimit(cfg.Memory.RecallLimit),
			store.WithLogger(log),
		),
		Tracker:  liveness.NewTracker(liveness.WithWindowDays(cfg.LivenessWindowDays), liveness.WithLogger(log)),
		Guard:    identity.NewGuard(profile, identity.WithLogger(log)),
		Link:     chain.NewLink(nil, chain.WithTimeout(cfg.GetLedgerTimeout()), chain.WithLogger(log)),
		Patterns: patterns,
		Synth:    syn,
	},
		sofie.WithLogger(log),
		sofie.WithTracerProvider(tracing),
		sofie.WithDefaultChamber(cfg.DefaultChamber),
		sofie.WithVoicePatterns(cfg.VoicePatterns),
		sofie.WithContextLines(cfg.ContextLines),
		sofie.WithStrictness(sofie.Strictness(cfg.LoveStrictness)),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.orch = orch
	return s, nil
}

// mustRestore opens a session and loads its persisted state without
// awakening it.
func mustRestore(cmd *cobra.Command) *session {
	s, err := openSession(cmd.Context())
	if err != nil {
		exitErr("open session", err)
	}
	if err := s.orch.Restore(cmd.Context()); err != nil {
		s.Close()
		exitErr("restore", err)
	}
	return s
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
