package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/proto"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/rpc"
)

// expandctl is the operator CLI for the expansion service.
//
// Usage:
//
//	expandctl create-key  --name "my-app" [--rate-limit 100] [--expires-in 720h]
//	expandctl revoke-key  --key <raw-key>
//	expandctl list-keys
//	expandctl seed        --file expansions.json [--source seed]
//	expandctl expand      --query "big cat" [--limit 10] [--addr localhost:9000]
//	expandctl stats       [--addr localhost:9000]
//	expandctl invalidate-cache
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	ctx := context.Background()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "create-key":
		cmdCreateKey(ctx, cfg, args[1:])
	case "revoke-key":
		cmdRevokeKey(ctx, cfg, args[1:])
	case "list-keys":
		cmdListKeys(ctx, cfg)
	case "seed":
		cmdSeed(ctx, cfg, args[1:])
	case "expand":
		cmdExpand(cfg, args[1:])
	case "stats":
		cmdStats(cfg, args[1:])
	case "invalidate-cache":
		cmdInvalidateCache(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func connectValidator(cfg *config.Config) (*apikey.Validator, func()) {
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	return apikey.NewValidator(db), func() { db.Close() }
}

func cmdCreateKey(ctx context.Context, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("create-key", flag.ExitOnError)
	name := fs.String("name", "", "name for the api key")
	rateLimit := fs.Int("rate-limit", 100, "requests per minute")
	expiresIn := fs.String("expires-in", "", "expiry duration, e.g. 720h (optional)")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		os.Exit(1)
	}

	var expiresAt *time.Time
	if *expiresIn != "" {
		d, err := time.ParseDuration(*expiresIn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --expires-in: %v\n", err)
			os.Exit(1)
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	v, closeDB := connectValidator(cfg)
	defer closeDB()

	if err := v.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure api key schema: %v\n", err)
		os.Exit(1)
	}

	key, err := v.CreateKey(ctx, *name, *rateLimit, expiresAt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("API key created successfully.")
	fmt.Println("Store this key securely — it cannot be retrieved again.")
	fmt.Println()
	fmt.Printf("  Key:        %s\n", key)
	fmt.Printf("  Name:       %s\n", *name)
	fmt.Printf("  Rate Limit: %d req/min\n", *rateLimit)
	if expiresAt != nil {
		fmt.Printf("  Expires:    %s\n", expiresAt.Format(time.RFC3339))
	} else {
		fmt.Println("  Expires:    never")
	}
}

func cmdRevokeKey(ctx context.Context, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("revoke-key", flag.ExitOnError)
	key := fs.String("key", "", "raw api key to revoke")
	fs.Parse(args)

	if *key == "" {
		fmt.Fprintln(os.Stderr, "error: --key is required")
		os.Exit(1)
	}

	v, closeDB := connectValidator(cfg)
	defer closeDB()

	if err := v.RevokeKey(ctx, *key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to revoke key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("API key revoked successfully.")
}

func cmdListKeys(ctx context.Context, cfg *config.Config) {
	v, closeDB := connectValidator(cfg)
	defer closeDB()

	keys, err := v.ListKeys(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list keys: %v\n", err)
		os.Exit(1)
	}

	if len(keys) == 0 {
		fmt.Println("No active API keys.")
		return
	}

	fmt.Printf("%-36s  %-20s  %-10s  %s\n", "ID", "Name", "Rate Limit", "Expires")
	fmt.Println("------------------------------------  --------------------  ----------  -------------------------")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Printf("%-36s  %-20s  %-10d  %s\n", k.ID, k.Name, k.RateLimit, expires)
	}

	fmt.Printf("\nTotal: %d active key(s)\n", len(keys))
}

// seedEntry is one record of the seed file: a JSON array of queries with
// their precomputed expansion terms.
type seedEntry struct {
	Query  string            `json:"query"`
	Terms  []expansion.Entry `json:"terms"`
	Bound  int               `json:"bound"`
	Source string            `json:"source"`
}

func cmdSeed(ctx context.Context, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", "", "path to a JSON file of seed expansions")
	source := fs.String("source", expander.SourceSeed, "source label for the seeded records")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "error: --file is required")
		os.Exit(1)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read seed file: %v\n", err)
		os.Exit(1)
	}

	var seeds []seedEntry
	if err := json.Unmarshal(data, &seeds); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse seed file: %v\n", err)
		os.Exit(1)
	}
	if len(seeds) == 0 {
		fmt.Fprintln(os.Stderr, "seed file contains no entries")
		os.Exit(1)
	}

	now := time.Now().UTC()
	events := make([]kafka.Event, 0, len(seeds))
	for _, s := range seeds {
		src := s.Source
		if src == "" {
			src = *source
		}
		events = append(events, kafka.Event{
			Key: expander.QueryKey(s.Query),
			Value: expander.ExpansionResultEvent{
				EventID:    uuid.NewString(),
				Query:      s.Query,
				Terms:      s.Terms,
				Bound:      s.Bound,
				Source:     src,
				ComputedAt: now,
			},
		})
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ExpansionComplete)
	defer producer.Close()

	if err := producer.PublishBatch(ctx, events); err != nil {
		fmt.Fprintf(os.Stderr, "failed to publish seed events: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Published %d expansion(s) to %s.\n", len(events), cfg.Kafka.Topics.ExpansionComplete)
}

func dialRPC(cfg *config.Config, addr string) *rpc.Client {
	if addr == "" {
		addr = fmt.Sprintf("localhost:%d", cfg.RPC.Port)
	}
	client, err := rpc.DialTimeout(addr, 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to expander rpc at %s: %v\n", addr, err)
		os.Exit(1)
	}
	return client
}

func cmdExpand(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("expand", flag.ExitOnError)
	query := fs.String("query", "", "query to expand")
	limit := fs.Int("limit", 0, "maximum terms to return (0 = all)")
	addr := fs.String("addr", "", "expander rpc address (default localhost:<rpc port>)")
	fs.Parse(args)

	if *query == "" {
		fmt.Fprintln(os.Stderr, "error: --query is required")
		os.Exit(1)
	}

	client := dialRPC(cfg, *addr)
	defer client.Close()

	var resp proto.ExpandResponse
	err := client.Call("Expander.Expand", proto.ExpandRequest{Query: *query, Limit: int32(*limit)}, &resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "expand failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Query:  %s\n", resp.Query)
	fmt.Printf("Source: %s  Bound: %d  Terms: %d  Latency: %dms\n", resp.Source, resp.Bound, resp.TotalTerms, resp.LatencyMs)
	fmt.Println()
	fmt.Printf("%-4s  %-30s  %s\n", "#", "Term", "Weight")
	for i, tw := range resp.Terms {
		fmt.Printf("%-4d  %-30s  %.4f\n", i+1, tw.Term, tw.Weight)
	}
}

func cmdStats(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	addr := fs.String("addr", "", "expander rpc address (default localhost:<rpc port>)")
	fs.Parse(args)

	client := dialRPC(cfg, *addr)
	defer client.Close()

	var resp proto.StatsResponse
	if err := client.Call("Expander.Stats", proto.StatsRequest{}, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "stats failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Registered expansions: %d\n", resp.Entries)
	fmt.Printf("Cache hits/misses:     %d/%d\n", resp.CacheHits, resp.CacheMisses)
	fmt.Printf("Uptime:                %s\n", (time.Duration(resp.UptimeSeconds) * time.Second).String())
	fmt.Println()
	fmt.Printf("%-6s  %s\n", "Shard", "Entries")
	for _, sc := range resp.Shards {
		fmt.Printf("%-6d  %d\n", sc.Shard, sc.Entries)
	}
}

func cmdInvalidateCache(ctx context.Context, cfg *config.Config) {
	client, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to redis: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	removed, err := client.FlushByPattern(ctx, "expansion:v1:*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to invalidate cache: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Invalidated %d cached expansion(s).\n", removed)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: expandctl <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  create-key        Create a new API key")
	fmt.Fprintln(os.Stderr, "  revoke-key        Revoke an existing API key")
	fmt.Fprintln(os.Stderr, "  list-keys         List all active API keys")
	fmt.Fprintln(os.Stderr, "  seed              Publish expansions from a JSON file to Kafka")
	fmt.Fprintln(os.Stderr, "  expand            Look up an expansion over the internal RPC")
	fmt.Fprintln(os.Stderr, "  stats             Show registry statistics over the internal RPC")
	fmt.Fprintln(os.Stderr, "  invalidate-cache  Drop all cached expansions from Redis")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, `  expandctl create-key --name "my-app" --rate-limit 100 --expires-in 720h`)
	fmt.Fprintln(os.Stderr, `  expandctl seed --file expansions.json`)
	fmt.Fprintln(os.Stderr, `  expandctl expand --query "big cat" --limit 10`)
	fmt.Fprintln(os.Stderr, `  expandctl stats`)
}
