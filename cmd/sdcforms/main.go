// Package main implements the sdcforms server CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gofhir/sdcforms"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "sdcforms",
		Short: "FHIR SDC form management service",
		Long: `sdcforms serves the SDC form-management API: Questionnaire CRUD and
search against a FHIR store, the $package operation that bundles a
Questionnaire with its ValueSet, CodeSystem, Library and StructureMap
dependencies, and the $localize transform for multilingual forms.`,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the sdcforms version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sdcforms", sdcforms.Version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default sdcforms.yaml in . or /etc/sdcforms)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
