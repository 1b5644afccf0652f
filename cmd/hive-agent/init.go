package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultAgentYAML = `# hive-agent config
# Priority: CLI flag > environment > this file > default.

api_url:       "http://localhost:8080"
agent_token:   ""            # "<agentId>.<secret>" from: hivectl agent create
poll_interval: "15s"
max_poll_interval: "60s"
log_level:     "info"        # debug | info | warn | error

gemini_api_key: ""           # or GEMINI_API_KEY
gemini_models:
  - gemini-2.5-flash-lite
  - gemini-2.5-flash
  - gemini-2.0-flash-lite

# research: true             # trusted agents only
# provider_identity: ""
# payout_address: ""

metrics_addr: ":9092"
# otel_endpoint: "localhost:4318"
`

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write default configuration for hive-agent.

If --config is given the file is written to that path.
Otherwise it is written to ~/.hive402/hive-agent.yaml.
Fails if the file already exists unless --force is passed.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		dest := cfgFile
		if dest == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("home dir: %w", err)
			}
			dest = filepath.Join(home, ".hive402", "hive-agent.yaml")
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		if !forceInit {
			if _, err := os.Stat(dest); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", dest)
			} else if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", dest, err)
			}
		}
		if err := os.WriteFile(dest, []byte(defaultAgentYAML), 0o600); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("config written to %s\n", dest)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite existing config file")
}
