// Package ibkrtest runs an in-process endpoint speaking the TWS wire
// protocol, so sessions and fetch flows can be exercised against scripted
// broker behavior without a live gateway.
package ibkrtest

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"ibkr-data/internal/ibkr"
	"ibkr-data/internal/model"
)

const serverVersion = 176

// Script handles one accepted connection.
type Script func(c *Conn)

// Server accepts connections and runs one script per connection, in arrival
// order. Connections beyond the scripted ones are closed immediately.
type Server struct {
	ln net.Listener
	wg sync.WaitGroup

	mu      sync.Mutex
	scripts []Script
}

// NewServer starts a listener on a loopback port and registers cleanup with
// t. Use Host and Port to point a client at it.
func NewServer(t testing.TB, scripts ...Script) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{ln: ln, scripts: scripts}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		script := s.nextScript()
		if script == nil {
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			script(&Conn{rw: conn})
		}()
	}
}

func (s *Server) nextScript() Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.scripts) == 0 {
		return nil
	}
	sc := s.scripts[0]
	s.scripts = s.scripts[1:]
	return sc
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Host returns the listening host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	p, _ := strconv.Atoi(port)
	return p
}

// Close stops the listener and waits for all scripts to finish.
func (s *Server) Close() {
	s.ln.Close()
	s.wg.Wait()
}

// HistRequest is the historical-data request a script received.
type HistRequest struct {
	ReqID           int
	Symbol          string
	SecType         string
	Exchange        string
	PrimaryExchange string
	BarSize         string
	Duration        string
	WhatToShow      string
}

// Conn wraps one accepted broker-side connection. Its methods return errors
// instead of failing the test because scripts run off the test goroutine and
// teardown races with the client are expected.
type Conn struct {
	rw net.Conn
}

// Handshake performs the server side of the v100 exchange and the client
// announcement, returning the announced client id.
func (c *Conn) Handshake() (int, error) {
	sig := make([]byte, len("API\x00"))
	if _, err := io.ReadFull(c.rw, sig); err != nil {
		return 0, err
	}
	if string(sig) != "API\x00" {
		return 0, fmt.Errorf("bad api signature %q", sig)
	}
	if _, err := ibkr.ReadMessage(c.rw); err != nil { // client version range
		return 0, err
	}
	greeting := time.Now().UTC().Format("20060102 15:04:05") + " UTC"
	if err := ibkr.WriteMessage(c.rw, strconv.Itoa(serverVersion), greeting); err != nil {
		return 0, err
	}
	start, err := ibkr.ReadMessage(c.rw)
	if err != nil {
		return 0, err
	}
	if len(start) < 3 || start[0] != "71" {
		return 0, fmt.Errorf("expected start api, got %v", start)
	}
	clientID, _ := strconv.Atoi(start[2])
	return clientID, nil
}

// ReadHistRequest reads messages until a historical-data request arrives.
func (c *Conn) ReadHistRequest() (HistRequest, error) {
	for {
		fields, err := ibkr.ReadMessage(c.rw)
		if err != nil {
			return HistRequest{}, err
		}
		if len(fields) == 0 || fields[0] != "20" {
			continue
		}
		if len(fields) < 23 {
			return HistRequest{}, fmt.Errorf("short historical request: %d fields", len(fields))
		}
		reqID, _ := strconv.Atoi(fields[1])
		return HistRequest{
			ReqID:           reqID,
			Symbol:          fields[3],
			SecType:         fields[4],
			Exchange:        fields[9],
			PrimaryExchange: fields[10],
			BarSize:         fields[16],
			Duration:        fields[17],
			WhatToShow:      fields[19],
		}, nil
	}
}

// SendError writes one error/notice message tagged with reqID.
func (c *Conn) SendError(reqID, code int, msg string) error {
	return ibkr.WriteMessage(c.rw, "4", "2", strconv.Itoa(reqID), strconv.Itoa(code), msg, "")
}

// SendNextValidID writes the order-id bookkeeping message clients receive
// right after announcing themselves.
func (c *Conn) SendNextValidID(id int) error {
	return ibkr.WriteMessage(c.rw, "9", "1", strconv.Itoa(id))
}

// SendHistoricalData answers a request with the full bar set in one message;
// receipt of the message is the completion signal.
func (c *Conn) SendHistoricalData(reqID int, bars []model.Bar) error {
	fields := make([]string, 0, 5+len(bars)*8)
	fields = append(fields, "17", strconv.Itoa(reqID), "", "", strconv.Itoa(len(bars)))
	for _, b := range bars {
		fields = append(fields,
			formatBarTime(b.Time()),
			formatPx(b.Open),
			formatPx(b.High),
			formatPx(b.Low),
			formatPx(b.Close),
			strconv.FormatInt(b.Volume, 10),
			formatPx(b.Close), // WAP
			"1",               // trade count
		)
	}
	return ibkr.WriteMessage(c.rw, fields...)
}

// WaitClose drains the connection until the client hangs up.
func (c *Conn) WaitClose() {
	io.Copy(io.Discard, c.rw)
}

// Raw exposes the underlying connection for scripts that need to write
// custom frames.
func (c *Conn) Raw() net.Conn { return c.rw }

func formatBarTime(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("20060102")
	}
	return t.Format("20060102 15:04:05")
}

func formatPx(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ServeBars scripts the happy path: handshake, one request, all bars
// delivered in a single response.
func ServeBars(bars []model.Bar) Script {
	return func(c *Conn) {
		if _, err := c.Handshake(); err != nil {
			return
		}
		c.SendNextValidID(1)
		c.SendError(-1, 2104, "Market data farm connection is OK:usfarm")
		req, err := c.ReadHistRequest()
		if err != nil {
			return
		}
		c.SendHistoricalData(req.ReqID, bars)
		c.WaitClose()
	}
}

// ServeError scripts a broker that answers the request with one error code.
func ServeError(code int, message string) Script {
	return func(c *Conn) {
		if _, err := c.Handshake(); err != nil {
			return
		}
		req, err := c.ReadHistRequest()
		if err != nil {
			return
		}
		c.SendError(req.ReqID, code, message)
		c.WaitClose()
	}
}

// ServeNothing scripts a broker that accepts the request and then goes
// silent, forcing the client down its timeout path.
func ServeNothing() Script {
	return func(c *Conn) {
		if _, err := c.Handshake(); err != nil {
			return
		}
		if _, err := c.ReadHistRequest(); err != nil {
			return
		}
		c.WaitClose()
	}
}

// RejectHandshake scripts a broker that drops the connection before the
// handshake completes.
func RejectHandshake() Script {
	return func(c *Conn) {}
}
