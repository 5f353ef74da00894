// Package fetch implements the per-symbol historical download flow: resolve
// bar-size and date policy, walk the venue candidates in order, run one
// fresh broker session per attempt, and post-process the winning bar set.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"ibkr-data/internal/barsize"
	"ibkr-data/internal/daterange"
	"ibkr-data/internal/ibkr"
	"ibkr-data/internal/model"
)

// Failure classes for one venue attempt. FetchSeries reports the last one
// seen when every venue is exhausted.
var (
	ErrConnect   = errors.New("connect failed")
	ErrTimeout   = errors.New("timed out waiting for historical data")
	ErrRejected  = errors.New("broker rejected request")
	ErrNoData    = errors.New("no bars returned")
	ErrExhausted = errors.New("all venue routes failed")
)

// reqID tags the single historical request each fresh session carries.
const reqID = 1

// Request describes one symbol download.
type Request struct {
	Symbol    string
	Kind      ibkr.AssetKind // empty means auto-detect
	StartDate string         // YYYYMMDD or YYYY-MM-DD; empty means the default
	BarSize   string         // empty or unsupported falls back to the default
	Host      string
	Port      int
	ClientID  int
}

// Outcome is the terminal result of one FetchSeries call. It is never
// partially successful: either Series holds the cleaned bars or
// ErrorMessage says why there are none.
type Outcome struct {
	Success      bool
	Series       model.Series
	ErrorMessage string
	Attempts     int
}

// Config carries the empirical wait budgets. Zero values get defaults.
type Config struct {
	DialTimeout    time.Duration
	Settle         time.Duration // wait after connecting before the first request
	DisconnectWait time.Duration // wait after closing a session
	Timeouts       barsize.Timeouts
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.Settle == 0 {
		c.Settle = 3 * time.Second
	}
	if c.DisconnectWait == 0 {
		c.DisconnectWait = 2 * time.Second
	}
	if c.Timeouts == nil {
		c.Timeouts = barsize.DefaultTimeouts()
	}
	return c
}

// Fetcher downloads one symbol at a time through fallback venue routes.
type Fetcher struct {
	cfg    Config
	logger *slog.Logger
}

// New builds a Fetcher. logger must not be nil.
func New(cfg Config, logger *slog.Logger) *Fetcher {
	return &Fetcher{cfg: cfg.withDefaults(), logger: logger}
}

// FetchSeries walks the venue candidates for req until one yields bars.
// Venue attempts fail independently and in order; the outcome carries the
// last failure when all are exhausted. The returned series is sorted,
// deduplicated and trimmed to the requested start date.
func (f *Fetcher) FetchSeries(ctx context.Context, req Request) Outcome {
	kind := req.Kind
	if kind == "" {
		kind = ibkr.GuessKind(req.Symbol)
	}

	size, ok := barsize.Normalize(req.BarSize)
	if !ok && req.BarSize != "" {
		f.logger.Warn("unsupported bar size, using default",
			"symbol", req.Symbol, "requested", req.BarSize,
			"using", size, "suggestions", barsize.Suggest(req.BarSize))
	}

	rng, err := daterange.Resolve(req.StartDate, time.Now())
	if err != nil {
		return Outcome{ErrorMessage: err.Error()}
	}

	venues := ibkr.RoutesFor(req.Symbol, kind)
	wait := f.cfg.Timeouts.For(size)
	f.logger.Info("fetching historical data",
		"symbol", req.Symbol, "kind", kind, "bar_size", size,
		"category", barsize.CategoryOf(size).String(),
		"duration", rng.Duration(), "venues", len(venues), "wait_budget", wait)

	var lastErr error
	attempts := 0
	for _, v := range venues {
		attempts++
		series, err := f.tryVenue(ctx, req, kind, v, rng, size, wait)
		if err != nil {
			lastErr = err
			f.logger.Warn("venue attempt failed",
				"symbol", req.Symbol, "exchange", v.Exchange,
				"attempt", attempts, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		first, last := series.Span()
		f.logger.Info("fetch succeeded",
			"symbol", req.Symbol, "exchange", v.Exchange, "attempt", attempts,
			"bars", len(series),
			"from", first.Format("2006-01-02"), "to", last.Format("2006-01-02"))
		return Outcome{Success: true, Series: series, Attempts: attempts}
	}

	if lastErr == nil {
		lastErr = ErrExhausted
	}
	f.logger.Error("all venues failed",
		"symbol", req.Symbol, "attempts", attempts, "last_error", lastErr)
	return Outcome{ErrorMessage: lastErr.Error(), Attempts: attempts}
}

// tryVenue runs one complete attempt: fresh session, one request, bounded
// wait, unconditional close.
func (f *Fetcher) tryVenue(ctx context.Context, req Request, kind ibkr.AssetKind, v ibkr.Venue, rng daterange.Range, size string, wait time.Duration) (model.Series, error) {
	addr := net.JoinHostPort(req.Host, strconv.Itoa(req.Port))
	sess, err := ibkr.Dial(ctx, addr, req.ClientID, ibkr.Options{
		DialTimeout: f.cfg.DialTimeout,
		Settle:      f.cfg.Settle,
		Logger:      f.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	defer func() {
		sess.Close()
		if f.cfg.DisconnectWait > 0 {
			time.Sleep(f.cfg.DisconnectWait)
		}
	}()

	contract := ibkr.ContractFor(req.Symbol, kind, v)
	if err := sess.RequestHistoricalData(reqID, contract, rng.Duration(), size); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	bars, err := f.awaitBars(ctx, sess, wait)
	if err != nil {
		return nil, err
	}
	series := model.BuildSeries(bars, rng.Start)
	if len(series) == 0 {
		return nil, ErrNoData
	}
	return series, nil
}

// awaitBars blocks until the terminal event for the outstanding request, the
// wait budget elapsing, or batch cancellation. Fatal broker codes end the
// wait immediately; other non-informational codes are logged and the wait
// continues.
func (f *Fetcher) awaitBars(ctx context.Context, sess *ibkr.Session, wait time.Duration) ([]model.Bar, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var bars []model.Bar
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("%w after %s", ErrTimeout, wait)
		case ev, ok := <-sess.Events():
			if !ok {
				return nil, fmt.Errorf("%w: session closed before completion", ErrConnect)
			}
			switch ev := ev.(type) {
			case ibkr.BarEvent:
				if ev.ReqID == reqID {
					bars = append(bars, ev.Bar)
				}
			case ibkr.EndEvent:
				if ev.ReqID != reqID {
					continue
				}
				if len(bars) == 0 {
					return nil, ErrNoData
				}
				return bars, nil
			case ibkr.ErrorEvent:
				switch {
				case ev.Informational():
					f.logger.Debug("broker notice", "code", ev.Code, "message", ev.Message)
				case ev.Fatal():
					return nil, fmt.Errorf("%w: %d: %s", ErrRejected, ev.Code, ev.Message)
				default:
					f.logger.Warn("broker error", "code", ev.Code, "message", ev.Message)
				}
			}
		}
	}
}
