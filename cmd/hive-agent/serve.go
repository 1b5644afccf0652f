package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hive402/backend/internal/agent"
	"github.com/hive402/backend/internal/completion"
	"github.com/hive402/backend/internal/config"
	"github.com/hive402/backend/internal/telemetry"
	"github.com/hive402/backend/pkg/hiveclient"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start polling for tasks",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("api-url", "http://localhost:8080", "Hive API base URL")
	serveCmd.Flags().String("agent-id", "", "agent id (defaults to the id part of --agent-token)")
	serveCmd.Flags().String("agent-token", "", `agent credential "<agentId>.<secret>" from hivectl agent create`)
	serveCmd.Flags().Duration("poll-interval", agent.DefaultPollInterval, "default poll interval")
	serveCmd.Flags().Duration("max-poll-interval", agent.MaxPollInterval, "poll interval cap while backing off")
	serveCmd.Flags().String("gemini-api-key", "", "Gemini API key")
	serveCmd.Flags().String("gemini-base-url", "", "Gemini API base URL override")
	serveCmd.Flags().StringSlice("gemini-models", completion.DefaultModels, "models tried in order")
	serveCmd.Flags().Bool("research", false, "synthesize and publish a skill when search finds nothing (trusted agents only)")
	serveCmd.Flags().String("provider-identity", "", "provider identity for researched skills")
	serveCmd.Flags().String("payout-address", "", "payout address for researched skills")
	serveCmd.Flags().String("metrics-addr", ":9092", "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing; empty disables tracing")

	bindFlag("api_url", serveCmd.Flags(), "api-url")
	bindFlag("agent_id", serveCmd.Flags(), "agent-id")
	bindFlag("agent_token", serveCmd.Flags(), "agent-token")
	bindFlag("poll_interval", serveCmd.Flags(), "poll-interval")
	bindFlag("max_poll_interval", serveCmd.Flags(), "max-poll-interval")
	bindFlag("gemini_api_key", serveCmd.Flags(), "gemini-api-key")
	bindFlag("gemini_base_url", serveCmd.Flags(), "gemini-base-url")
	bindFlag("gemini_models", serveCmd.Flags(), "gemini-models")
	bindFlag("research", serveCmd.Flags(), "research")
	bindFlag("provider_identity", serveCmd.Flags(), "provider-identity")
	bindFlag("payout_address", serveCmd.Flags(), "payout-address")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = viper.BindEnv("gemini_api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("agent_token", "HIVE_AGENT_TOKEN")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.LoadAgent(viper.GetViper())
	if cfg.AgentToken == "" {
		return errors.New("--agent-token is required")
	}
	if cfg.AgentID == "" {
		cfg.AgentID, _, _ = strings.Cut(cfg.AgentToken, ".")
	}
	if cfg.GeminiAPIKey == "" {
		return errors.New("--gemini-api-key (or GEMINI_API_KEY) is required")
	}

	logger := buildLogger(cfg.LogLevel, "hive-agent").With(slog.String("agent_id", cfg.AgentID))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, "hive-agent", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()
	telemetry.StartMetricsServer(ctx, cfg.MetricsAddr, logger)

	client := hiveclient.New(cfg.APIURL, hiveclient.WithAgentToken(cfg.AgentToken))
	completer := completion.NewGemini(completion.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Models:  cfg.GeminiModels,
		Logger:  logger,
	})
	executor := agent.NewExecutor(client, completer, agent.Research{
		Enabled:          cfg.Research,
		ProviderIdentity: cfg.ProviderIdentity,
		PayoutAddress:    cfg.PayoutAddress,
	}, logger)

	backoff := agent.DefaultBackoff()
	if cfg.PollInterval > 0 {
		backoff.Default = cfg.PollInterval
	}
	if cfg.MaxPollInterval > 0 {
		backoff.Max = max(cfg.MaxPollInterval, backoff.Default)
	}
	loop := agent.NewLoop(client, executor, cfg.AgentID, agent.WithBackoff(backoff), agent.WithLogger(logger))

	logger.Info("agent starting", slog.String("api_url", cfg.APIURL), slog.Duration("poll_interval", backoff.Default))
	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("agent loop: %w", err)
	}
	logger.Info("stopped cleanly")
	return nil
}
