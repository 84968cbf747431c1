// Command tardis is a debug CLI for the tardis.dev client.
//
//	replay       Replay recorded market data as NDJSON on stdout
//	market       Replay reconstructed (normalized) market data as NDJSON
//	exchange     Print the metadata document of one exchange
//	datasets     Download daily CSV dataset files
//	clear-cache  Remove every locally cached data slice
//
// Configuration comes from TARDIS_* environment variables (a .env file in
// the working directory is loaded first) plus per-command flags.
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
	"github.com/rs/zerolog"

	tardis "github.com/tardis-dev/tardis-go"
	"github.com/tardis-dev/tardis-go/datasets"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tardis:", err)
		os.Exit(1)
	}
}

func usage() error {
	return fmt.Errorf("usage: tardis <replay|market|exchange|datasets|clear-cache> [flags]")
}

func run() error {
	if len(os.Args) < 2 {
		return usage()
	}

	godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "replay":
		return replayCmd(ctx, os.Args[2:])
	case "market":
		return marketCmd(ctx, os.Args[2:])
	case "exchange":
		return exchangeCmd(ctx, os.Args[2:])
	case "datasets":
		return datasetsCmd(ctx, os.Args[2:])
	case "clear-cache":
		return clearCacheCmd(os.Args[2:])
	default:
		return usage()
	}
}

func newClient(verbose bool) (*tardis.Client, error) {
	opts, err := tardis.OptionsFromEnv()
	if err != nil {
		return nil, err
	}
	if verbose {
		opts.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return tardis.NewClient(opts)
}

// parseFilters reads "channel:SYM|SYM,channel" into channel filters.
func parseFilters(s string) []tardis.Channel {
	if s == "" {
		return nil
	}
	var filters []tardis.Channel
	for _, part := range strings.Split(s, ",") {
		name, symbols, found := strings.Cut(part, ":")
		ch := tardis.Channel{Name: name}
		if found && symbols != "" {
			ch.Symbols = strings.Split(symbols, "|")
		}
		filters = append(filters, ch)
	}
	return filters
}

func replayCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	exchange := fs.String("exchange", "", "exchange to replay (required)")
	from := fs.String("from", "", "range start, ISO 8601, inclusive (required)")
	to := fs.String("to", "", "range end, ISO 8601, exclusive (required)")
	filters := fs.String("filters", "", "channel filters, e.g. trade:XBTUSD|ETHUSD,orderBookL2:XBTUSD")
	raw := fs.Bool("raw", false, "do not decode record timestamps")
	verbose := fs.Bool("v", false, "debug logging to stderr")
	fs.Parse(args)

	client, err := newClient(*verbose)
	if err != nil {
		return err
	}
	defer client.Close()

	it, err := client.Replay(ctx, tardis.ReplayArgs{
		Exchange: *exchange,
		From:     *from,
		To:       *to,
		Filters:  parseFilters(*filters),
		Raw:      *raw,
	})
	if err != nil {
		return err
	}
	defer it.Close()

	enc := json.NewEncoder(os.Stdout)
	for it.Next() {
		r := it.Response()
		line := map[string]any{"message": r.Message}
		if *raw {
			line["localTimestamp"] = string(r.RawTimestamp)
		} else {
			line["localTimestamp"] = r.LocalTimestamp
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return it.Err()
}

func marketCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("market", flag.ExitOnError)
	exchange := fs.String("exchange", "", "exchange to replay (required)")
	from := fs.String("from", "", "range start, ISO 8601, inclusive (required)")
	to := fs.String("to", "", "range end, ISO 8601, exclusive (required)")
	symbols := fs.String("symbols", "", "symbols, e.g. XBTUSD|ETHUSD (required)")
	verbose := fs.Bool("v", false, "debug logging to stderr")
	fs.Parse(args)

	client, err := newClient(*verbose)
	if err != nil {
		return err
	}
	defer client.Close()

	it, err := client.ReconstructMarket(ctx, *exchange, *from, *to, strings.Split(*symbols, "|"))
	if err != nil {
		return err
	}
	defer it.Close()

	enc := json.NewEncoder(os.Stdout)
	for it.Next() {
		if err := enc.Encode(it.Response()); err != nil {
			return err
		}
	}
	return it.Err()
}

func exchangeCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("exchange", flag.ExitOnError)
	exchange := fs.String("exchange", "", "exchange to describe (required)")
	verbose := fs.Bool("v", false, "debug logging to stderr")
	fs.Parse(args)

	client, err := newClient(*verbose)
	if err != nil {
		return err
	}
	defer client.Close()

	details, err := client.ExchangeDetails(ctx, *exchange)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(details, '\n'))
	return err
}

func datasetsCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("datasets", flag.ExitOnError)
	exchange := fs.String("exchange", "", "exchange (required)")
	dataTypes := fs.String("data-types", "trades", "data types, e.g. trades|incremental_book_L2")
	symbols := fs.String("symbols", "", "symbols, e.g. BTC-PERPETUAL|ETH-PERPETUAL (required)")
	from := fs.String("from", "", "range start, ISO 8601, inclusive (required)")
	to := fs.String("to", "", "range end, ISO 8601, exclusive (required)")
	dir := fs.String("dir", "./datasets", "download directory")
	verbose := fs.Bool("v", false, "debug logging to stderr")
	fs.Parse(args)

	var logger zerolog.Logger
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}

	return datasets.Download(ctx, datasets.Args{
		Exchange:    *exchange,
		DataTypes:   strings.Split(*dataTypes, "|"),
		Symbols:     strings.Split(*symbols, "|"),
		From:        *from,
		To:          *to,
		APIKey:      os.Getenv("TARDIS_API_KEY"),
		DownloadDir: *dir,
		Logger:      logger,
	})
}

func clearCacheCmd(args []string) error {
	fs := flag.NewFlagSet("clear-cache", flag.ExitOnError)
	fs.Parse(args)

	client, err := newClient(false)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.ClearCache()
}
