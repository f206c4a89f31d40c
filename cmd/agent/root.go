package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Rrens/agent-handoff/internal/agent"
	"github.com/Rrens/agent-handoff/internal/config"
	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/logger"
	"github.com/Rrens/agent-handoff/internal/restclient"
)

const requestTimeout = 15 * time.Second

// app carries what every subcommand needs after flags are parsed
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var serverURL, email string

	rootCmd := &cobra.Command{
		Use:           "agent",
		Short:         "Agent console for the live-chat handoff hub",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if serverURL != "" {
				cfg.Agent.ServerURL = serverURL
			}
			if email != "" {
				cfg.Agent.Email = email
			}
			if cfg.Logging.File == "" {
				// log lines would interleave with the console prompt
				cfg.Logging.Level = "warn"
			}
			if _, err := logger.Setup(cfg.Logging); err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "hub base URL (default agent.server_url)")
	rootCmd.PersistentFlags().StringVar(&email, "email", "", "agent email (default agent.email)")

	rootCmd.AddCommand(
		newConnectCmd(a),
		newRoomsCmd(a),
		newOpenTicketCmd(a),
	)
	return rootCmd
}

// login authenticates against the hub with the configured credentials
func (a *app) login(ctx context.Context) (*restclient.Client, *domain.LoginResult, error) {
	if a.cfg.Agent.Email == "" || a.cfg.Agent.Password == "" {
		return nil, nil, fmt.Errorf("agent email and password are required (HANDOFF_AGENT_EMAIL, HANDOFF_AGENT_PASSWORD)")
	}

	client := restclient.New(a.cfg.Agent.ServerURL, requestTimeout)
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	result, err := client.Login(ctx, a.cfg.Agent.Email, a.cfg.Agent.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("login failed: %w", err)
	}
	return client, result, nil
}

func (a *app) reconnectPolicy() agent.ReconnectPolicy {
	rc := a.cfg.Agent.Reconnect
	if !rc.Enabled {
		return agent.NoReconnect{}
	}
	return agent.Backoff{Initial: rc.Initial, Max: rc.Max, Attempts: rc.Attempts}
}
