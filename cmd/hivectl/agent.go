package main

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hive402/backend/internal/auth"
	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/repository"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage worker agents",
}

var agentCreateCmd = &cobra.Command{
	Use:   "create <agent-id>",
	Short: "Register an agent and print its bearer token",
	Long: `Register an agent and print the token it authenticates with.

The secret is shown once; only its bcrypt hash is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runAgentCreate,
}

var (
	agentName    string
	agentTrusted bool
)

func init() {
	agentCreateCmd.Flags().StringVar(&agentName, "name", "", "display name (defaults to the id)")
	agentCreateCmd.Flags().BoolVar(&agentTrusted, "trusted", false, "allow publishing skills without a provider signature")
	agentCmd.AddCommand(agentCreateCmd)
}

func runAgentCreate(cmd *cobra.Command, args []string) error {
	id := args[0]
	name := agentName
	if name == "" {
		name = id
	}

	secret, err := auth.GenerateSecret()
	if err != nil {
		return err
	}
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(cmd.Context(), viper.GetString("database_url"))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	a := &models.Agent{ID: id, Name: name, SecretHash: hash, Trusted: agentTrusted, CreatedAt: time.Now()}
	if err := repository.NewAgentRepo(pool).CreateAgent(cmd.Context(), a); err != nil {
		return fmt.Errorf("create agent %s: %w", id, err)
	}

	fmt.Printf("agent %s created (trusted=%t)\n", id, agentTrusted)
	fmt.Printf("token: %s.%s\n", id, secret)
	return nil
}
