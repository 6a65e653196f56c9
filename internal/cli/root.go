// Package cli implements the omisync command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentworkforce/omisync/internal/config"
)

// Version is set at build time.
var Version = "0.1.0"

const (
	exitFatal         = 1
	exitInvalidConfig = 2
)

// app carries the per-invocation state shared by every command. Commands
// read configuration from here, never from package globals.
type app struct {
	v          *viper.Viper
	configFile string
	stdout     io.Writer
	stderr     io.Writer

	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
}

// NewRootCommand builds a fresh command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:        config.NewViper(),
		stdout:   stdout,
		stderr:   stderr,
		logger:   slog.New(slog.DiscardHandler),
		closeLog: func() error { return nil },
	}

	root := &cobra.Command{
		Use:   "omisync",
		Short: "Sync Omi conversations into a markdown vault",
		Long: `omisync fetches finished Omi conversations and writes them into a vault as
daily raw logs, event notes for notable conversations and daily highlights.
Repeated runs are idempotent.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (YAML or TOML)")
	flags.String("vault", "", "vault root directory (default: $OMI_VAULT_PATH)")
	flags.String("timezone", "", "IANA time zone for dates and times (default: $OMI_TIMEZONE or America/New_York)")
	flags.String("state-dsn", "", "state backend DSN: file://, sqlite://, postgres:// or memory://")
	flags.String("api-base-url", "", "Omi API base URL")
	flags.String("log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	flags.String("log-file", "", "rotating JSON log file (default: <vault>/Omi/.omi-sync/omisync.log)")
	flags.Bool("strict", false, "fail the run on the first malformed record")
	a.bindFlag(root, config.KeyVaultPath, "vault")
	a.bindFlag(root, config.KeyTimezone, "timezone")
	a.bindFlag(root, config.KeyStateBackendDSN, "state-dsn")
	a.bindFlag(root, config.KeyAPIBaseURL, "api-base-url")
	a.bindFlag(root, config.KeyLogLevel, "log-level")
	a.bindFlag(root, config.KeyLogFile, "log-file")
	a.bindFlag(root, config.KeyStrictRecords, "strict")

	root.AddCommand(
		a.newRunCommand(),
		a.newWatchCommand(),
		a.newDoctorCommand(),
		a.newRebuildIndexCommand(),
		a.newVersionCommand(),
	)
	return root
}

// Execute runs the command tree against the process arguments and returns
// the exit code.
func Execute() int {
	cmd := NewRootCommand(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	if errors.Is(err, config.ErrInvalidConfig) {
		return exitInvalidConfig
	}
	return exitFatal
}

func (a *app) bindFlag(cmd *cobra.Command, key, name string) {
	if err := a.v.BindPFlag(key, cmd.PersistentFlags().Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// loadConfig reads and validates the configuration. When withLogFile is set
// the logger also writes to the rotating log file; callers defer
// closeLogger once loadConfig succeeds.
func (a *app) loadConfig(requireAPIKey, withLogFile bool) error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(requireAPIKey); err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logFile := ""
	if withLogFile {
		logFile = cfg.LogFile
	}
	a.logger, a.closeLog = config.SetupLogger(a.stderr, logFile, level)
	return nil
}

func (a *app) closeLogger() {
	if err := a.closeLog(); err != nil {
		fmt.Fprintf(a.stderr, "Warning: failed to close log file: %v\n", err)
	}
}
