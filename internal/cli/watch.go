package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/agentworkforce/omisync/internal/config"
	"github.com/agentworkforce/omisync/internal/vault"
)

const overridesDebounce = 250 * time.Millisecond

type watchOptions struct {
	interval time.Duration
	jitter   float64
	timeout  time.Duration
	once     bool
	debounce time.Duration
}

func (a *app) newWatchCommand() *cobra.Command {
	opts := watchOptions{debounce: overridesDebounce}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync periodically and whenever the notable overrides change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(true, true); err != nil {
				return err
			}
			defer a.closeLogger()
			opts.interval, opts.jitter, opts.timeout = watchSettings(a.cfg, a.logger)
			a.logger.Info("watch starting", "interval", opts.interval.String(), "jitter", opts.jitter, "timeout", opts.timeout.String())

			layout, err := vault.NewLayout(a.cfg.VaultPath)
			if err != nil {
				return err
			}
			if err := layout.EnsureSyncDirs(); err != nil {
				return err
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			rootCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			changes, closeWatcher, err := watchOverrides(rootCtx, layout.OverridesPath(), a.logger)
			if err != nil {
				return err
			}
			defer closeWatcher()

			return watchLoop(rootCtx, opts, changes, a.logger, func(ctx context.Context) error {
				result, err := a.syncOnce(ctx)
				if err != nil {
					return err
				}
				renderResult(a.stdout, result)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.Duration("interval", config.DefaultWatchInterval, "sync interval (default: $OMI_WATCH_INTERVAL)")
	flags.Float64("interval-jitter", config.DefaultWatchIntervalJitter, "sync interval jitter ratio 0.0-1.0 (default: $OMI_WATCH_INTERVAL_JITTER)")
	flags.Duration("timeout", config.DefaultWatchTimeout, "per-sync timeout (default: $OMI_WATCH_TIMEOUT)")
	flags.BoolVar(&opts.once, "once", false, "run one sync cycle and exit")
	for key, name := range map[string]string{
		config.KeyWatchInterval:       "interval",
		config.KeyWatchIntervalJitter: "interval-jitter",
		config.KeyWatchTimeout:        "timeout",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
	return cmd
}

// watchSettings resolves the loop timing from the loaded configuration.
// Unusable values fall back to the defaults and are reported on logger.
func watchSettings(cfg config.Config, logger *slog.Logger) (time.Duration, float64, time.Duration) {
	interval, jitter, timeout := cfg.WatchInterval, cfg.WatchIntervalJitter, cfg.WatchTimeout
	if interval <= 0 {
		logger.Warn("invalid watch interval, using default", "value", interval.String(), "default", config.DefaultWatchInterval.String())
		interval = config.DefaultWatchInterval
	}
	if timeout <= 0 {
		logger.Warn("invalid watch timeout, using default", "value", timeout.String(), "default", config.DefaultWatchTimeout.String())
		timeout = config.DefaultWatchTimeout
	}
	if clamped := clampJitterRatio(jitter); clamped != jitter {
		logger.Warn("watch interval jitter out of range, clamping", "value", jitter, "clamped", clamped)
		jitter = clamped
	}
	return interval, jitter, timeout
}

// watchLoop runs cycle immediately, then again on every jittered interval and
// shortly after each overrides change. Cycles never overlap: changes seen
// while a cycle is running are picked up once it returns. A failed cycle is
// logged and the loop carries on.
func watchLoop(ctx context.Context, opts watchOptions, changes <-chan struct{}, logger *slog.Logger, cycle func(context.Context) error) error {
	run := func(reason string) {
		cycleCtx, cancel := context.WithTimeout(ctx, opts.timeout)
		defer cancel()
		if err := cycle(cycleCtx); err != nil {
			logger.Error("sync cycle failed", "trigger", reason, "error", err)
			return
		}
		logger.Info("sync cycle completed", "trigger", reason)
	}

	run("startup")
	if opts.once {
		return nil
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	next := func() time.Duration {
		return jitteredIntervalWithSample(opts.interval, opts.jitter, rng.Float64())
	}
	timer := time.NewTimer(next())
	defer timer.Stop()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopping", "reason", ctx.Err())
			return nil
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			debounce = time.After(opts.debounce)
		case <-debounce:
			debounce = nil
			run("overrides")
			resetTimer(timer, next())
		case <-timer.C:
			run("interval")
			timer.Reset(next())
		}
	}
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

// watchOverrides reports changes to the overrides file. The parent directory
// is watched so the file may be created, replaced or removed.
func watchOverrides(ctx context.Context, path string, logger *slog.Logger) (<-chan struct{}, func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("create overrides watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, nil, fmt.Errorf("watch overrides directory %s: %w", dir, err)
	}

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isOverridesEvent(event, path) {
					continue
				}
				logger.Debug("overrides changed", "path", event.Name, "op", event.Op.String())
				select {
				case changes <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("overrides watcher error", "error", err)
			}
		}
	}()
	return changes, watcher.Close, nil
}

func isOverridesEvent(event fsnotify.Event, path string) bool {
	if filepath.Clean(event.Name) != filepath.Clean(path) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
