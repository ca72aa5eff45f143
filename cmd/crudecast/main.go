package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "crudecast",
	Short: "CRUDECAST - news-driven crude oil movement forecasting",
	Long: `CRUDECAST ingests global news event bundles and crude oil price series,
aligns them onto a country-by-date grid, engineers model features and
predicts the next WTI close move with per-country attribution.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
