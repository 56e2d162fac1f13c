// Package main provides the entry point for the registry resolution worker.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "registry_worker",
	Short: "Registry resolution worker",
	Long:  "Registry worker resolves pending person names against the business registry and records the companies each person solely owns.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// databaseURL returns the --db-url flag value, falling back to DATABASE_URL.
func databaseURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("database URL is required (set DATABASE_URL environment variable or use --db-url flag)")
}
