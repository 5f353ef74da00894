package ibkr

import "strings"

// AssetKind selects the security type requested from the broker.
type AssetKind string

const (
	Equity AssetKind = "STK"
	Index  AssetKind = "IND"
)

// wellKnownIndices are symbols always treated as indices during kind
// detection.
var wellKnownIndices = map[string]bool{
	"NDX":   true,
	"SPX":   true,
	"RUT":   true,
	"VIX":   true,
	"DJI":   true,
	"IXIC":  true,
	"COMPX": true,
}

// GuessKind classifies a bare symbol when the caller did not say. Well-known
// index symbols and very short tickers are treated as indices, everything
// else as common stock.
func GuessKind(symbol string) AssetKind {
	up := strings.ToUpper(strings.TrimSpace(symbol))
	if wellKnownIndices[up] || len(up) <= 3 {
		return Index
	}
	return Equity
}

// Contract describes one security to the broker.
type Contract struct {
	Symbol          string
	SecType         AssetKind
	Exchange        string
	PrimaryExchange string
	Currency        string
}

// ContractFor builds the request contract for a symbol routed through v.
// All contracts are USD-denominated.
func ContractFor(symbol string, kind AssetKind, v Venue) Contract {
	return Contract{
		Symbol:          strings.ToUpper(strings.TrimSpace(symbol)),
		SecType:         kind,
		Exchange:        v.Exchange,
		PrimaryExchange: v.PrimaryExchange,
		Currency:        "USD",
	}
}
