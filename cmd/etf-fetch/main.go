// Command etf-fetch runs one fetch tier and prints the run summary. It is the
// command-line equivalent of the cron trigger endpoints.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/tidwall/pretty"

	"github.com/bdtoconnect-creator/etf-compass/internal/app"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/bdtoconnect-creator/etf-compass/internal/services/fetcher"
)

func main() {
	configPath := flag.String("config", "", "path to etf-compass.toml")
	tier := flag.String("tier", "realtime", "tier to run")
	force := flag.Bool("force", false, "run intraday tiers while the market is closed")
	collections := flag.String("collections", "", "comma separated subset of the tier's collections")
	flag.Parse()

	_ = godotenv.Load()

	os.Exit(run(*configPath, *tier, *force, *collections))
}

func run(configPath, tier string, force bool, collections string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, app.ResolveConfigPath(configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		return 1
	}
	defer a.Close()

	if a.Fetcher == nil {
		fmt.Fprintln(os.Stderr, "No market data client configured (set POLYGON_API_KEY)")
		return 1
	}

	opts := fetcher.RunOptions{Force: force, Collections: splitList(collections)}
	summary, err := a.Fetcher.Run(ctx, tier, opts)
	if summary != nil {
		out, merr := json.Marshal(summary)
		if merr == nil {
			os.Stdout.Write(pretty.Pretty(out))
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}
	if summary.Status == models.RunFailed {
		return 1
	}
	return 0
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
