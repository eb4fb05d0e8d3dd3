// Package cmd implements the analyzer's command-line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/cmd/httpd"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/config"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "analyzer",
		Short: "Web-page compliance analyzer",
		Long: `Analyzer ingests crawled page batches, matches them against a
keyword corpus, validates candidates, and persists the evidence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./config.yml, or CONFIG_PATH)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("analyzer version 1.0.0")
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the analyzer HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = config.GetConfigPath("config.yml")
			}
			return httpd.Start(path)
		},
	})
}
