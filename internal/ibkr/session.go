// Package ibkr speaks the slice of the TWS socket API needed to pull
// historical bars: the v100+ handshake, client announcement, one
// historical-data request per session, and decoding of the bar/error stream.
package ibkr

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// whatToShow is fixed: only split/dividend adjusted prices are requested.
const whatToShow = "ADJUSTED_LAST"

const (
	defaultDialTimeout = 10 * time.Second
	eventBuffer        = 256
)

// Options tunes Dial. Zero values fall back to defaults.
type Options struct {
	DialTimeout time.Duration
	// Settle is how long Dial waits after the handshake before the
	// session is handed to the caller, giving the server time to push
	// its connection notices.
	Settle time.Duration
	Logger *slog.Logger
}

// Session is one short-lived broker connection. A background reader drains
// incoming messages into Events until the connection drops or Close is
// called. Sessions are not reused: each request cycle dials a fresh one so
// stale in-flight state cannot leak between attempts.
type Session struct {
	conn   net.Conn
	logger *slog.Logger

	serverVersion int
	serverTime    string

	events    chan Event
	quit      chan struct{}
	dead      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to a TWS endpoint, performs the protocol handshake,
// announces clientID, and waits out the settle delay. The caller must Close
// the returned session.
func Dial(ctx context.Context, addr string, clientID int, opts Options) (*Session, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	s := &Session{
		conn:   conn,
		logger: logger,
		events: make(chan Event, eventBuffer),
		quit:   make(chan struct{}),
		dead:   make(chan struct{}),
	}
	if err := s.handshake(clientID, opts.DialTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	go s.readLoop()

	if opts.Settle > 0 {
		t := time.NewTimer(opts.Settle)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			s.Close()
			return nil, ctx.Err()
		}
	}
	if !s.Alive() {
		s.Close()
		return nil, fmt.Errorf("connection to %s dropped during settle", addr)
	}
	return s, nil
}

func (s *Session) handshake(clientID int, timeout time.Duration) error {
	if err := s.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := s.conn.Write([]byte(apiSignature)); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if err := WriteMessage(s.conn, clientVersionRange); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	fields, err := ReadMessage(s.conn)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if len(fields) < 1 {
		return fmt.Errorf("handshake: empty server greeting")
	}
	v, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("handshake: bad server version %q", fields[0])
	}
	if v < minServerVersion {
		return fmt.Errorf("server version %d too old, need at least %d", v, minServerVersion)
	}
	s.serverVersion = v
	if len(fields) > 1 {
		s.serverTime = fields[1]
	}
	if err := WriteMessage(s.conn, msgStartAPI, "2", strconv.Itoa(clientID), ""); err != nil {
		return fmt.Errorf("start api: %w", err)
	}
	if err := s.conn.SetDeadline(time.Time{}); err != nil {
		return err
	}
	s.logger.Debug("session established",
		"server_version", v, "server_time", s.serverTime, "client_id", clientID)
	return nil
}

// readLoop drains the connection until it errors, decoding each message and
// forwarding events. It is the only writer to the events channel and closes
// it on exit.
func (s *Session) readLoop() {
	defer close(s.events)
	defer close(s.dead)
	for {
		fields, err := ReadMessage(s.conn)
		if err != nil {
			s.logger.Debug("session reader stopped", "error", err)
			return
		}
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case msgHistoricalData:
			reqID, bars, end, err := decodeHistoricalData(fields)
			if err != nil {
				s.logger.Warn("bad historical data message", "error", err)
				return
			}
			for _, b := range bars {
				if !s.emit(BarEvent{ReqID: reqID, Bar: b}) {
					return
				}
			}
			if !s.emit(end) {
				return
			}
		case msgError:
			ev, err := decodeError(fields)
			if err != nil {
				s.logger.Warn("bad error message", "error", err)
				continue
			}
			if !s.emit(ev) {
				return
			}
		case msgNextValidID, msgManagedAccounts:
			// session bookkeeping, nothing to surface
		default:
			s.logger.Debug("ignoring message", "type", fields[0])
		}
	}
}

func (s *Session) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.quit:
		return false
	}
}

// Events returns the stream of decoded broker events. The channel closes
// when the connection drops or the session is closed.
func (s *Session) Events() <-chan Event { return s.events }

// Alive reports whether the background reader is still draining messages.
func (s *Session) Alive() bool {
	select {
	case <-s.dead:
		return false
	default:
		return true
	}
}

// ServerVersion reports the version negotiated during the handshake.
func (s *Session) ServerVersion() int { return s.serverVersion }

// ServerTime reports the wall-clock string the server sent in its greeting.
func (s *Session) ServerTime() string { return s.serverTime }

// Close tears down the connection and stops the reader. Safe to call more
// than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// RequestHistoricalData asks for duration of history ending now, sampled at
// barSize, regular trading hours only, split/dividend adjusted. Bars and the
// terminal event arrive on Events tagged with reqID.
func (s *Session) RequestHistoricalData(reqID int, c Contract, duration, barSize string) error {
	fields := []string{
		msgReqHistoricalData,
		strconv.Itoa(reqID),
		"0", // conId
		c.Symbol,
		string(c.SecType),
		"",  // lastTradeDateOrContractMonth
		"0", // strike
		"",  // right
		"",  // multiplier
		c.Exchange,
		c.PrimaryExchange,
		c.Currency,
		"",  // localSymbol
		"",  // tradingClass
		"0", // includeExpired
		"",  // endDateTime: empty means now
		barSize,
		duration,
		"1", // useRTH
		whatToShow,
		"1", // formatDate
		"0", // keepUpToDate
		"",  // chartOptions
	}
	s.logger.Debug("requesting historical data",
		"req_id", reqID, "symbol", c.Symbol, "sec_type", c.SecType,
		"exchange", c.Exchange, "duration", duration, "bar_size", barSize)
	return WriteMessage(s.conn, fields...)
}
