package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hive402/backend/pkg/hiveclient"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Browse the skill marketplace",
}

var skillsSearchCmd = &cobra.Command{
	Use:   "search [keywords...]",
	Short: "Search skills by keyword, category and minimum price",
	RunE:  runSkillsSearch,
}

var (
	searchCategory string
	searchMinPrice int64
)

func init() {
	skillsSearchCmd.Flags().StringVar(&searchCategory, "category", "", "exact category")
	skillsSearchCmd.Flags().Int64Var(&searchMinPrice, "min-price", 0, "minimum price in microSTX")
	skillsCmd.AddCommand(skillsSearchCmd)
}

func runSkillsSearch(cmd *cobra.Command, args []string) error {
	c := hiveclient.New(viper.GetString("api_url"))
	list, err := c.Search(cmd.Context(), strings.Join(args, " "), searchCategory, searchMinPrice)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no skills found")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tPRICE (STX)")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.6f\n", s.ID, s.Title, s.Category, s.PriceSTX)
	}
	return tw.Flush()
}
