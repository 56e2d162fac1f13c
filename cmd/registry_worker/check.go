package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirkomrk2-web/registry-worker/internal/browser"
	"github.com/kirkomrk2-web/registry-worker/internal/config"
	"github.com/kirkomrk2-web/registry-worker/internal/db"
	"github.com/kirkomrk2-web/registry-worker/internal/observability"
	"github.com/kirkomrk2-web/registry-worker/internal/worker"
)

var checkCmd = &cobra.Command{
	Use:   "check NAME...",
	Short: "Resolve one name against the registry without touching the database",
	Long:  "Run a single registry lookup for NAME and print the result row as JSON. The name may be given as one quoted argument or as several words.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

var (
	checkBaseURL string
	checkEmail   string
	checkQuiet   bool
)

func init() {
	checkCmd.Flags().StringVar(&checkBaseURL, "base-url", "", "Registry search URL prefix (overrides REGISTRY_BASE_URL)")
	checkCmd.Flags().StringVar(&checkEmail, "email", "", "Email recorded on the printed result")
	checkCmd.Flags().BoolVarP(&checkQuiet, "quiet", "q", false, "Only print the JSON result")
	rootCmd.AddCommand(checkCmd)
}

// checkEnv overlays the --base-url flag on the process environment.
func checkEnv(key string) (string, bool) {
	if key == "REGISTRY_BASE_URL" && checkBaseURL != "" {
		return checkBaseURL, true
	}
	return os.LookupEnv(key)
}

func runCheck(cmd *cobra.Command, args []string) error {
	fullName := strings.Join(args, " ")
	if strings.TrimSpace(fullName) == "" {
		return fmt.Errorf("name is blank")
	}

	cfg, err := config.LoadFrom(checkEnv)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session := browser.NewSession(cfg.BrowserConfig())
	if err := session.Init(ctx); err != nil {
		return err
	}
	defer session.Close() //nolint:errcheck

	processor := worker.NewProcessor(nil, session, cfg.WorkerOptions())
	status, check, err := processor.Resolve(ctx, fullName, checkEmail)
	if err != nil {
		return fmt.Errorf("lookup finished with status %s: %w", status, err)
	}

	if !checkQuiet {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintRegistryCheck(status, check)
	}
	return writeCheckResult(cmd.OutOrStdout(), status, check)
}

type checkResult struct {
	Status string            `json:"status"`
	Check  *db.RegistryCheck `json:"check"`
}

// writeCheckResult prints the validated result row with its status as indented JSON.
func writeCheckResult(w io.Writer, status string, check *db.RegistryCheck) error {
	if _, err := db.MarshalRegistryCheck(check); err != nil {
		return fmt.Errorf("result failed validation: %w", err)
	}
	out, err := json.MarshalIndent(checkResult{Status: status, Check: check}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
