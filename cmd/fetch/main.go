/*
Package main implements a one-shot command line client for the market data
toolkit.

Subcommands:

	bars      cached 1-minute bars, optionally resampled and session filtered
	vol       a rolling realized-volatility estimator over bars
	surface   the ORATS implied volatility surface of a ticker on a date
	rates     a FRED constant-maturity Treasury or LIBOR rate on a date
	sessions  trading sessions of an exchange between two dates

Usage:

	go run ./cmd/fetch bars -symbol=BTC-USD -class=crypto -start=2024-01-01 -end=2024-01-02 -interval=5m
	go run ./cmd/fetch vol -symbol=AAPL -start=2024-01-02 -end=2024-06-01 -interval=24h -estimator=parkinson -window=20
	go run ./cmd/fetch sessions -exchange=XNYS -start=2024-01-01 -end=2024-01-31

Results are written to stdout as CSV; logs go to stderr.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"marketdata/internal/app"
	"marketdata/internal/calendar"
	"marketdata/internal/config"
	"marketdata/internal/model"
	"marketdata/internal/ohlcv"
	"marketdata/internal/service"
	"marketdata/internal/volatility"

	"github.com/rs/zerolog/log"
)

const usage = "usage: fetch <bars|vol|surface|rates|sessions> [flags]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("fetch failed")
	}
}

// run dispatches one subcommand.
func run(ctx context.Context, command string, args []string, out io.Writer) error {
	switch command {
	case "bars":
		return runBars(ctx, args, out)
	case "vol":
		return runVol(ctx, args, out)
	case "surface":
		return runSurface(ctx, args, out)
	case "rates":
		return runRates(ctx, args, out)
	case "sessions":
		return runSessions(args, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

// barFlags are shared by bars and vol.
type barFlags struct {
	configPath string
	symbol     string
	class      string
	start      string
	end        string
	interval   time.Duration
	sessions   bool
}

func (b *barFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&b.configPath, "config", config.DefaultPath, "Path to the YAML configuration")
	fs.StringVar(&b.symbol, "symbol", "", "Ticker (equity) or BASE-QUOTE pair (crypto)")
	fs.StringVar(&b.class, "class", string(model.Equity), "Asset class: equity or crypto")
	fs.StringVar(&b.start, "start", "", "Window start, RFC3339 or YYYY-MM-DD (UTC)")
	fs.StringVar(&b.end, "end", "", "Window end (exclusive), RFC3339 or YYYY-MM-DD; defaults to now")
	fs.DurationVar(&b.interval, "interval", 0, "Output bar width, 0 for native 1-minute bars")
	fs.BoolVar(&b.sessions, "sessions-only", false, "Drop bars outside the exchange session")
}

func (b *barFlags) request() (service.Request, error) {
	if b.symbol == "" {
		return service.Request{}, errors.New("symbol cannot be empty")
	}
	class := model.AssetClass(strings.ToLower(b.class))
	if !class.Valid() {
		return service.Request{}, fmt.Errorf("unknown asset class %q", b.class)
	}
	start, err := parseTime(b.start)
	if err != nil {
		return service.Request{}, fmt.Errorf("invalid start: %w", err)
	}
	end := time.Now().UTC().Truncate(time.Minute)
	if b.end != "" {
		if end, err = parseTime(b.end); err != nil {
			return service.Request{}, fmt.Errorf("invalid end: %w", err)
		}
	}
	return service.Request{
		Symbol:       strings.ToUpper(b.symbol),
		AssetClass:   class,
		Window:       model.FetchWindow{Start: start, End: end},
		Interval:     b.interval,
		SessionsOnly: b.sessions,
	}, nil
}

func loadApp(path string) (*app.App, error) {
	cfg, err := config.LoadAndValidate(path)
	if err != nil {
		return nil, err
	}
	if err := app.SetupLogging(cfg.Log.Level, true); err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func runBars(ctx context.Context, args []string, out io.Writer) error {
	var bf barFlags
	fs := flag.NewFlagSet("bars", flag.ContinueOnError)
	bf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := bf.request()
	if err != nil {
		return err
	}
	a, err := loadApp(bf.configPath)
	if err != nil {
		return err
	}

	bars, err := a.Bars.Bars(ctx, req)
	if err != nil {
		return err
	}
	log.Info().Str("symbol", req.Symbol).Int("bars", len(bars)).Msg("bars fetched")
	return ohlcv.ToFrame(bars, "timestamp").WriteCSV(out)
}

func runVol(ctx context.Context, args []string, out io.Writer) error {
	var bf barFlags
	fs := flag.NewFlagSet("vol", flag.ContinueOnError)
	bf.register(fs)
	estimator := fs.String("estimator", service.CloseToClose, "One of "+strings.Join(service.Estimators(), ", "))
	window := fs.Int("window", 30, "Observations per estimate")
	annualization := fs.Float64("annualization", volatility.TradingDaysPerYear, "Observations per year")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := bf.request()
	if err != nil {
		return err
	}
	a, err := loadApp(bf.configPath)
	if err != nil {
		return err
	}

	pts, err := a.Bars.Volatility(ctx, req, *estimator, volatility.Options{Window: *window, Annualization: *annualization})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "timestamp,volatility")
	for _, p := range pts {
		value := ""
		if p.Value.Valid {
			value = strconv.FormatFloat(p.Value.Float64, 'f', -1, 64)
		}
		fmt.Fprintf(out, "%s,%s\n", p.Timestamp.UTC().Format(time.RFC3339), value)
	}
	return nil
}

func runSurface(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("surface", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath, "Path to the YAML configuration")
	ticker := fs.String("ticker", "", "Underlying ticker")
	date := fs.String("date", "", "Trade date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tradeDate, err := time.Parse("2006-01-02", *date)
	if err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	a, err := loadApp(*configPath)
	if err != nil {
		return err
	}
	orats, err := a.ORATS()
	if err != nil {
		return err
	}

	surface, err := service.Surface(ctx, orats, *ticker, tradeDate)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "expiry,strike,iv")
	for _, expiry := range surface.Expiries() {
		for _, p := range surface.Smile(expiry) {
			iv := ""
			if p.IV.Valid {
				iv = strconv.FormatFloat(p.IV.Float64, 'f', -1, 64)
			}
			fmt.Fprintf(out, "%s,%s,%s\n", expiry.Format("2006-01-02"), p.Strike.String(), iv)
		}
	}
	return nil
}

func runRates(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("rates", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath, "Path to the YAML configuration")
	kind := fs.String("kind", "treasury", "Rate family: treasury or libor")
	tenor := fs.String("tenor", "3m", "Tenor, e.g. 1m, 3m, 1y, 10y")
	date := fs.String("date", "", "Observation date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	on, err := time.Parse("2006-01-02", *date)
	if err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	a, err := loadApp(*configPath)
	if err != nil {
		return err
	}
	fred, err := a.FRED()
	if err != nil {
		return err
	}

	lookup := fred.TreasuryYield
	if *kind == "libor" {
		lookup = fred.Libor
	} else if *kind != "treasury" {
		return fmt.Errorf("unknown rate kind %q", *kind)
	}

	obs, err := lookup(ctx, on, *tenor)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "date,value")
	fmt.Fprintf(out, "%s,%s\n", obs.Date.Format("2006-01-02"), strconv.FormatFloat(obs.Value.Float64, 'f', -1, 64))
	return nil
}

func runSessions(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	exchange := fs.String("exchange", calendar.DefaultExchange, "Exchange identifier, one of "+strings.Join(calendar.Available(), ", "))
	start := fs.String("start", "", "First date, YYYY-MM-DD")
	end := fs.String("end", "", "Last date (inclusive), YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cal, err := calendar.New(*exchange)
	if err != nil {
		return err
	}
	from, err := time.Parse("2006-01-02", *start)
	if err != nil {
		return fmt.Errorf("invalid start: %w", err)
	}
	to, err := time.Parse("2006-01-02", *end)
	if err != nil {
		return fmt.Errorf("invalid end: %w", err)
	}

	dates, err := cal.SessionsBetween(from, to)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "date,open,close")
	for _, d := range dates {
		s, err := cal.Session(d)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s,%s,%s\n", s.Date.Format("2006-01-02"), s.Open.Format(time.RFC3339), s.Close.Format(time.RFC3339))
	}
	return nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("time cannot be empty")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}
