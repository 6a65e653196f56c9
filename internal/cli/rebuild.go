package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/omisync/internal/omisync"
	"github.com/agentworkforce/omisync/internal/statestore"
	"github.com/agentworkforce/omisync/internal/vault"
)

func (a *app) newRebuildIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-index",
		Short: "Rebuild the conversation index from the documents already in the vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(false, true); err != nil {
				return err
			}
			defer a.closeLogger()
			layout, err := vault.NewLayout(a.cfg.VaultPath)
			if err != nil {
				return err
			}
			backend, err := statestore.BuildBackendFromDSN(a.cfg.StateBackendDSN, layout.SyncDir())
			if err != nil {
				return fmt.Errorf("open state backend: %w", err)
			}
			store := statestore.New(backend, a.logger)
			defer store.Close()

			fmt.Fprintf(a.stdout, "Scanning vault: %s\n", a.cfg.VaultPath)
			count, err := omisync.RebuildIndex(layout, store, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Rebuilt index with %d entries\n", count)
			return nil
		},
	}
}
