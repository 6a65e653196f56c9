package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/omisync/internal/config"
	"github.com/agentworkforce/omisync/internal/statestore"
	"github.com/agentworkforce/omisync/internal/vault"
)

func (a *app) newDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and show the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.doctor()
		},
	}
}

func (a *app) doctor() error {
	p := newPalette(a.stdout)
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}

	backendName := cfg.StateBackendDSN
	if backendName == "" {
		backendName = "(vault files)"
	}
	fmt.Fprintln(a.stdout, p.title.Render("omisync configuration"))
	fmt.Fprintln(a.stdout, p.rows([]row{
		{"API key", cfg.MaskedAPIKey()},
		{"Vault path", cfg.VaultPath},
		{"API URL", cfg.APIBaseURL},
		{"Timezone", cfg.Timezone},
		{"Finalization lag", fmt.Sprintf("%d minutes", int(cfg.FinalizationLag.Minutes()))},
		{"Notable duration", fmt.Sprintf("%d minutes", int(cfg.NotableDuration.Minutes()))},
		{"Notable action items", fmt.Sprint(cfg.NotableActionItemsMin)},
		{"Notable keywords", strings.Join(cfg.NotableKeywords, ", ")},
		{"State backend", backendName},
		{"Log file", cfg.LogFile},
	}))

	if err := cfg.Validate(true); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintln(a.stdout, p.fail.Render("✗ ")+strings.TrimPrefix(line, config.ErrInvalidConfig.Error()+": "))
		}
		return err
	}

	layout, err := vault.NewLayout(cfg.VaultPath)
	if err != nil {
		return err
	}
	backend, err := statestore.BuildBackendFromDSN(cfg.StateBackendDSN, layout.SyncDir())
	if err != nil {
		fmt.Fprintln(a.stdout, p.fail.Render("✗ ")+err.Error())
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	store := statestore.New(backend, a.logger)
	defer store.Close()
	state, entries := store.Load()
	lastRun := "never"
	if state.LastRunAt != nil {
		lastRun = *state.LastRunAt
	}
	fmt.Fprintln(a.stdout, p.rows([]row{
		{"Indexed conversations", fmt.Sprint(len(entries))},
		{"Last run", lastRun},
	}))
	fmt.Fprintln(a.stdout, p.ok.Render("Configuration OK"))
	return nil
}
