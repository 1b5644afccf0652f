package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/pkg/hiveclient"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Enqueue a task and wait for an agent to answer it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var (
	askSkills []string
	askPolls  int
)

func init() {
	askCmd.Flags().StringSliceVar(&askSkills, "skill", nil, "installed skill id to include as context (repeatable)")
	askCmd.Flags().IntVar(&askPolls, "polls", hiveclient.DefaultWaitPolls, "status polls before giving up (1s apart)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	c := hiveclient.New(viper.GetString("api_url"), hiveclient.WithWait(askPolls, time.Second))

	taskID, err := c.Enqueue(cmd.Context(), strings.Join(args, " "), askSkills...)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "task %s queued, waiting for an agent...\n", taskID)

	st, err := c.WaitForTask(cmd.Context(), taskID)
	if errors.Is(err, hiveclient.ErrTaskTimeout) {
		return fmt.Errorf("task %s: %w", taskID, err)
	}
	if err != nil {
		return err
	}
	if st.Output == nil {
		fmt.Printf("task %s %s with no output\n", taskID, st.Status)
		return nil
	}

	out, err := models.DecodeTaskOutput(*st.Output)
	if err != nil {
		fmt.Println(*st.Output)
		return nil
	}
	printOutput(out)
	return nil
}

func printOutput(out models.TaskOutput) {
	fmt.Printf("[%s] %s\n", out.Type, out.Text)
	if out.Skill != nil {
		fmt.Printf("\nrecommended: %s (%s) %.6f STX\n", out.Skill.Title, out.Skill.ID, out.Skill.PriceSTX)
	}
	if len(out.AllResults) > 1 {
		b, _ := json.MarshalIndent(out.AllResults, "", "  ")
		fmt.Printf("other results:\n%s\n", b)
	}
}
