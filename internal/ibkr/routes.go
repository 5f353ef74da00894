package ibkr

import "strings"

// Venue is one exchange routing candidate for a historical-data request.
type Venue struct {
	Exchange        string
	PrimaryExchange string
}

// genericIndexVenues is the fallback order tried for indices without a
// dedicated entry in preferredIndexVenue.
var genericIndexVenues = []Venue{
	{Exchange: "SMART"},
	{Exchange: "NASDAQ"},
	{Exchange: "CBOE"},
	{Exchange: "NYSE"},
	{Exchange: "ISLAND"},
}

// preferredIndexVenue pins well-known indices to the venue that actually
// serves them; it is tried before the generic fallbacks.
var preferredIndexVenue = map[string]Venue{
	"NDX": {Exchange: "NASDAQ"},
	"SPX": {Exchange: "CBOE"},
	"VIX": {Exchange: "CBOE"},
	"DJI": {Exchange: "NYSE"},
}

// RoutesFor returns the ordered venue candidates for one symbol. The list is
// never empty; the first venue that yields data wins and later entries are
// not tried.
func RoutesFor(symbol string, kind AssetKind) []Venue {
	if kind != Index {
		// Smart routing with the primary listing as a hint covers stocks.
		return []Venue{{Exchange: "SMART", PrimaryExchange: "NASDAQ"}}
	}
	up := strings.ToUpper(strings.TrimSpace(symbol))
	preferred, ok := preferredIndexVenue[up]
	if !ok {
		return append([]Venue(nil), genericIndexVenues...)
	}
	routes := make([]Venue, 0, len(genericIndexVenues)+1)
	routes = append(routes, preferred)
	for _, v := range genericIndexVenues {
		if v.Exchange != preferred.Exchange {
			routes = append(routes, v)
		}
	}
	return routes
}
