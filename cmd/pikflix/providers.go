package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jonathan/pikflix/internal/observability"
	"github.com/jonathan/pikflix/internal/types"
)

var providersJSON bool

var providersCmd = &cobra.Command{
	Use:   "providers <movie-id> <region>",
	Short: "Show where a movie can be watched in a region",
	Args:  cobra.ExactArgs(2),
	RunE:  runProviders,
}

func init() {
	providersCmd.Flags().BoolVar(&providersJSON, "json", false, "Print the JSON response")
	rootCmd.AddCommand(providersCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid movie id %q: %w", args[0], err)
	}
	req := types.ProviderRequest{MovieID: id, Region: args[1]}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return types.AsValidationError(err)
	}

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.writer.Start()
	defer a.writer.Close()

	resp, err := a.providers.Lookup(ctx, req)
	if err != nil {
		return err
	}
	if providersJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(resp)
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintProviders(resp)
	return nil
}
