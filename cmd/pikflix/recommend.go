package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jonathan/pikflix/internal/observability"
	"github.com/jonathan/pikflix/internal/types"
)

var (
	recommendStream bool
	recommendJSON   bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <query>",
	Short: "Get movie recommendations for a free-text request",
	Long: "Runs one recommendation request and prints the results. With --stream, each movie is " +
		"printed as soon as it is resolved, so the output follows resolution order rather than rank.",
	Args: cobra.MinimumNArgs(1),
	RunE: runRecommend,
}

func init() {
	recommendCmd.Flags().BoolVarP(&recommendStream, "stream", "s", false, "Print movies as they are resolved")
	recommendCmd.Flags().BoolVar(&recommendJSON, "json", false, "Print JSON (NDJSON frames with --stream)")
	rootCmd.AddCommand(recommendCmd)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	if err := (&types.RecommendationRequest{Query: query}).Validate(); err != nil {
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
	// Close waits for pending catalog writes before the process exits.
	defer a.writer.Close()

	out := cmd.OutOrStdout()
	if recommendStream {
		return a.orchestrator.Stream(ctx, query, newCLIStream(out, recommendJSON))
	}

	resp, err := a.orchestrator.Recommend(ctx, query)
	if err != nil {
		return err
	}
	if recommendJSON {
		return json.NewEncoder(out).Encode(resp)
	}
	observability.NewPrinter(out).PrintRecommendations(resp)
	return nil
}

// cliStream prints streamed recommendations as they arrive.
type cliStream struct {
	out     io.Writer
	asJSON  bool
	printer *observability.Printer
}

func newCLIStream(out io.Writer, asJSON bool) *cliStream {
	return &cliStream{out: out, asJSON: asJSON, printer: observability.NewPrinter(out)}
}

func (c *cliStream) OnInit(query string) error {
	if c.asJSON {
		return json.NewEncoder(c.out).Encode(map[string]string{"type": "init", "query": query})
	}
	_, err := fmt.Fprintf(c.out, "Recommendations for %q\n", query)
	return err
}

func (c *cliStream) OnItem(rec types.Recommendation) error {
	if c.asJSON {
		return json.NewEncoder(c.out).Encode(map[string]any{"type": "movie", "data": rec})
	}
	c.printer.PrintRecommendation(rec)
	return nil
}
