package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/omisync/internal/omiapi"
	"github.com/agentworkforce/omisync/internal/omisync"
	"github.com/agentworkforce/omisync/internal/statestore"
	"github.com/agentworkforce/omisync/internal/vault"
)

func (a *app) newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch conversations and sync them into the vault once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(true, true); err != nil {
				return err
			}
			defer a.closeLogger()
			fmt.Fprintf(a.stdout, "Syncing to vault: %s\n", a.cfg.VaultPath)
			result, err := a.syncOnce(cmd.Context())
			if err != nil {
				return err
			}
			renderResult(a.stdout, result)
			return nil
		},
	}
}

// syncOnce performs one fetch and sync cycle. A new engine is built every
// time so state and overrides are re-read from the vault.
func (a *app) syncOnce(ctx context.Context) (omisync.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	layout, err := vault.NewLayout(a.cfg.VaultPath)
	if err != nil {
		return omisync.Result{}, err
	}
	backend, err := statestore.BuildBackendFromDSN(a.cfg.StateBackendDSN, layout.SyncDir())
	if err != nil {
		return omisync.Result{}, fmt.Errorf("open state backend: %w", err)
	}
	store := statestore.New(backend, a.logger)
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			a.logger.Warn("closing state store failed", "error", closeErr)
		}
	}()

	loc, err := a.cfg.Location()
	if err != nil {
		return omisync.Result{}, err
	}
	engine, err := omisync.NewEngine(omisync.EngineOptions{
		Layout:          layout,
		Store:           store,
		Location:        loc,
		FinalizationLag: a.cfg.FinalizationLag,
		Notability: omisync.NotabilityConfig{
			MinDuration:    a.cfg.NotableDuration,
			MinActionItems: a.cfg.NotableActionItemsMin,
			Keywords:       a.cfg.NotableKeywords,
		},
		StrictRecords: a.cfg.StrictRecords,
		Logger:        a.logger,
	})
	if err != nil {
		return omisync.Result{}, err
	}

	client := omiapi.NewClient(omiapi.Options{
		BaseURL:    a.cfg.APIBaseURL,
		APIKey:     a.cfg.APIKey,
		PageSize:   a.cfg.PageSize,
		MaxRetries: a.cfg.MaxRetries,
		Timeout:    a.cfg.HTTPTimeout,
		Logger:     a.logger,
	})
	raw, err := client.FetchAllConversations(ctx)
	if err != nil {
		return omisync.Result{}, fmt.Errorf("api error: %w", err)
	}
	fmt.Fprintf(a.stdout, "Fetched %d conversations from API\n", len(raw))
	return engine.Sync(raw)
}
