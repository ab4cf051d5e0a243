package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"qteams/services"
	"qteams/store"

	"github.com/spf13/cobra"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Manage the topic registry",
}

var topicsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or rename topics from a YAML file",
	Long: `Import topics keyed by code. Existing topics are renamed, new ones
created. The file lists topics as:

  topics:
    - code: "1"
      name: History`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg, log)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open topic file: %w", err)
		}
		defer f.Close()

		reqs, err := services.ParseTopicsYAML(f)
		if err != nil {
			return err
		}
		n, err := services.NewTopicService(store.New(db)).ImportTopics(cmd.Context(), reqs)
		if err != nil {
			return err
		}
		cmd.Printf("Imported %d topics.\n", n)
		return nil
	},
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List topics ordered by code",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg, log)
		if err != nil {
			return err
		}

		code, _ := cmd.Flags().GetString("code")
		name, _ := cmd.Flags().GetString("name")
		topics, err := services.NewTopicService(store.New(db)).ListTopics(cmd.Context(), code, name)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCODE\tNAME")
		for _, t := range topics {
			fmt.Fprintf(w, "%d\t%s\t%s\n", t.ID, t.Code, t.Name)
		}
		return w.Flush()
	},
}

func init() {
	topicsListCmd.Flags().String("code", "", "only the topic with this code")
	topicsListCmd.Flags().String("name", "", "only topics whose name contains this text")

	topicsCmd.AddCommand(topicsImportCmd, topicsListCmd)
	rootCmd.AddCommand(topicsCmd)
}
