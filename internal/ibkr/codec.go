package ibkr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ibkr-data/internal/model"
)

// Wire framing: every message is a 4-byte big-endian length followed by that
// many bytes of NUL-terminated fields.
const (
	maxFrameSize = 0xFFFFFF

	apiSignature       = "API\x00"
	clientVersionRange = "v100..176"

	// v100+ servers deliver historical bars without per-message version
	// fields; anything older is not supported.
	minServerVersion = 124
)

// Message type codes, the first field of every message.
const (
	msgStartAPI          = "71"
	msgReqHistoricalData = "20"

	msgError           = "4"
	msgNextValidID     = "9"
	msgManagedAccounts = "15"
	msgHistoricalData  = "17"
)

// WriteMessage frames fields as one API message and writes it to w. Every
// field is NUL-terminated, including the last.
func WriteMessage(w io.Writer, fields ...string) error {
	var payload bytes.Buffer
	for _, f := range fields {
		payload.WriteString(f)
		payload.WriteByte(0)
	}
	if payload.Len() > maxFrameSize {
		return fmt.Errorf("message too large: %d bytes", payload.Len())
	}
	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(payload.Len()))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	_, err := w.Write(payload.Bytes())
	return err
}

// ReadMessage reads one framed message from r and splits it into fields.
func ReadMessage(r io.Reader) ([]string, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(head[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return splitFields(payload), nil
}

func splitFields(payload []byte) []string {
	fields := strings.Split(string(payload), "\x00")
	if n := len(fields); n > 0 && fields[n-1] == "" {
		fields = fields[:n-1]
	}
	return fields
}

// ParseBarTime parses a bar timestamp as the broker formats it: a compact
// date for daily and coarser bars, date plus wall-clock time for intraday
// bars, optionally suffixed with a timezone name. Times without a timezone
// are taken as UTC.
func ParseBarTime(s string) (time.Time, error) {
	parts := strings.Fields(strings.TrimSpace(s))
	switch len(parts) {
	case 1:
		return time.ParseInLocation("20060102", parts[0], time.UTC)
	case 2:
		return time.ParseInLocation("20060102 15:04:05", parts[0]+" "+parts[1], time.UTC)
	case 3:
		loc, err := time.LoadLocation(parts[2])
		if err != nil {
			loc = time.UTC
		}
		t, err := time.ParseInLocation("20060102 15:04:05", parts[0]+" "+parts[1], loc)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unrecognized bar time %q", s)
	}
}

// parseVolume tolerates the decimal volume strings the broker emits; indices
// report no volume as -1.
func parseVolume(s string) int64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(v)
}

// decodeHistoricalData unpacks one historical-data message: request id,
// range start/end, bar count, then 8 fields per bar.
func decodeHistoricalData(fields []string) (int, []model.Bar, EndEvent, error) {
	const perBar = 8
	if len(fields) < 5 {
		return 0, nil, EndEvent{}, fmt.Errorf("historical data message too short: %d fields", len(fields))
	}
	reqID, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, nil, EndEvent{}, fmt.Errorf("bad request id %q", fields[1])
	}
	count, err := strconv.Atoi(fields[4])
	if err != nil || count < 0 {
		return 0, nil, EndEvent{}, fmt.Errorf("bad bar count %q", fields[4])
	}
	rest := fields[5:]
	if len(rest) < count*perBar {
		return 0, nil, EndEvent{}, fmt.Errorf("truncated bar data: want %d fields, have %d", count*perBar, len(rest))
	}

	bars := make([]model.Bar, 0, count)
	for i := 0; i < count; i++ {
		f := rest[i*perBar : (i+1)*perBar]
		t, err := ParseBarTime(f[0])
		if err != nil {
			return 0, nil, EndEvent{}, err
		}
		open, err1 := strconv.ParseFloat(f[1], 64)
		high, err2 := strconv.ParseFloat(f[2], 64)
		low, err3 := strconv.ParseFloat(f[3], 64)
		closePx, err4 := strconv.ParseFloat(f[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return 0, nil, EndEvent{}, fmt.Errorf("bad bar prices at %s", f[0])
		}
		bars = append(bars, model.Bar{
			Timestamp: t.UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    parseVolume(f[5]),
		})
	}
	end := EndEvent{ReqID: reqID, Start: fields[2], End: fields[3], Count: count}
	return reqID, bars, end, nil
}

// decodeError unpacks an error message: version, request id, code, text.
func decodeError(fields []string) (ErrorEvent, error) {
	if len(fields) < 5 {
		return ErrorEvent{}, fmt.Errorf("error message too short: %d fields", len(fields))
	}
	id, err := strconv.Atoi(fields[2])
	if err != nil {
		id = -1
	}
	code, err := strconv.Atoi(fields[3])
	if err != nil {
		return ErrorEvent{}, fmt.Errorf("bad error code %q", fields[3])
	}
	return ErrorEvent{ReqID: id, Code: code, Message: fields[4]}, nil
}
