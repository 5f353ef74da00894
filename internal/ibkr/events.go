package ibkr

import "ibkr-data/internal/model"

// Event is one broker callback delivered through Session.Events. Exactly one
// terminal event (EndEvent or a fatal ErrorEvent) follows each historical
// data request.
type Event interface{ event() }

// BarEvent carries one historical bar.
type BarEvent struct {
	ReqID int
	Bar   model.Bar
}

// EndEvent signals that every bar for a request has been delivered.
type EndEvent struct {
	ReqID int
	Start string
	End   string
	Count int
}

// ErrorEvent carries a broker error or status notice. ReqID is -1 for
// notices not tied to a request.
type ErrorEvent struct {
	ReqID   int
	Code    int
	Message string
}

func (BarEvent) event()   {}
func (EndEvent) event()   {}
func (ErrorEvent) event() {}

// informationalCodes are routine connection notices the broker emits on
// every session; they never indicate a request failure.
var informationalCodes = map[int]bool{
	2104: true, // market data farm connection OK
	2106: true, // HMDS data farm connection OK
	2158: true, // sec-def data farm connection OK
	2174: true, // fractional share size display warning
}

// fatalCodes definitively fail the request they are tagged with: no data or
// permission, pacing violation, or an unsupported contract/bar combination.
var fatalCodes = map[int]bool{
	162:   true, // historical market data service error
	200:   true, // no security definition found
	321:   true, // error validating request
	10314: true, // invalid historical data request parameters
}

// Informational reports whether the event is a routine connection notice.
func (e ErrorEvent) Informational() bool { return informationalCodes[e.Code] }

// Fatal reports whether the event definitively fails its request.
func (e ErrorEvent) Fatal() bool { return fatalCodes[e.Code] }
