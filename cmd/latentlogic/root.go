package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/movinture/latent-logic/config"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
	now     func() time.Time
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), now: time.Now}

	root := &cobra.Command{
		Use:   "latentlogic",
		Short: "Tool-use evaluation harness for LLM agents",
		Long: `latentlogic runs a prompt set against a cohort of models through two agent
loops (scratch and strands), validates every answer against canonical ground
truth, and compares the two frameworks.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./latentlogic.yaml or $HOME/.latentlogic/latentlogic.yaml)")
	flags.String("output-dir", "results", "artifact root directory")
	flags.String("prompts", "prompts.yaml", "prompt set file (yaml or json)")
	flags.StringSlice("models", nil, "comma-separated model ids")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")

	_ = a.v.BindPFlag("output_dir", flags.Lookup("output-dir"))
	_ = a.v.BindPFlag("prompts", flags.Lookup("prompts"))
	_ = a.v.BindPFlag("models", flags.Lookup("models"))
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", flags.Lookup("log-format"))

	root.AddCommand(
		newCanonicalCmd(a),
		newRunCmd(a),
		newCompareCmd(a),
		newRecordsCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger = logger
	return nil
}

// newLogger builds a production zap logger. An unknown level falls back to
// info; format "text" selects the console encoder.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			fmt.Fprintf(os.Stderr, "invalid log level %q, using info\n", cfg.Level)
			level = zapcore.InfoLevel
		}
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "text" {
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zapConfig.Build(zap.AddStacktrace(zap.ErrorLevel))
}
