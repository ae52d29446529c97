// Command aide runs the persistent-memory assistant: a WebSocket server in
// front of a serialized turn engine, with conversation recall and a fact
// store behind it.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "aide",
	Short:         "Personal assistant with persistent conversational memory",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config overlay")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(memcheckCmd)
}

func main() {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
