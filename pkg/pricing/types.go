package pricing

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SearchRequest is the body of the search-initiation call.
type SearchRequest struct {
	Adults       int    `json:"adults"`
	Children     int    `json:"children"`
	Infants      int    `json:"infants"`
	CabinClass   string `json:"cabinClass"`
	Origin       string `json:"origin"`
	Destination  string `json:"destination"`
	OutboundDate string `json:"outboundDate"`
	InboundDate  string `json:"inboundDate"` // empty for one-way
	IsDirect     bool   `json:"isDirect"`
}

type searchResponse struct {
	Success bool   `json:"success"`
	Data    searchData `json:"data"`
	Error   string `json:"error,omitempty"`
}

type searchData struct {
	SearchID string `json:"search_id"`
}

type resultsResponse struct {
	Data         resultsData `json:"data"`
	CompleteData string      `json:"complete_data"` // "True" | "False"
}

type resultsData struct {
	Trips []Trip `json:"trips"`
}

// ResultsPage is one batch of raw trips plus the upstream completion signal.
type ResultsPage struct {
	Trips    []Trip
	Complete bool
}

// Segment is one leg of an itinerary as the provider reports it.
type Segment struct {
	Airline           string    `json:"airline"`
	AirlineCode       string    `json:"airline_code"`
	FlightNumber      string    `json:"flight_number"`
	Origin            string    `json:"origin"`
	Destination       string    `json:"destination"`
	DepartureTime     string    `json:"departure_time"` // ISO 8601
	ArrivalTime       string    `json:"arrival_time"`
	DepartureTerminal string    `json:"departure_terminal"`
	ArrivalTerminal   string    `json:"arrival_terminal"`
	Stops             int       `json:"stops"`
	FareClass         string    `json:"fare_class"`
	Price             FlexPrice `json:"price"`
}

// Trip is one raw upstream result fragment. The provider uses two shapes:
// a segmented one where legs sit in the trip array, and a flat one where the
// same leg fields sit directly on the fragment. Flat fragments leave Trip
// empty, so Segment is embedded to carry the flat fields.
type Trip struct {
	Segment

	ID               string    `json:"id"`
	BookingReference string    `json:"booking_reference"`
	RoundTrip        FlexBool  `json:"round_trip"`
	Trip             []Segment `json:"trip"`
	CabinClass       string    `json:"cabin_class"`
	Currency         string    `json:"currency"`
	ActualFare       FlexPrice `json:"actual_fare"`
	TripPrice        FlexPrice `json:"price"`
	GrossFare        FlexPrice `json:"gross_fare"`
}

// FlexBool tolerates the provider's inconsistent encodings of booleans:
// true, 1, "1", "true" and "True" all decode to true.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1":
		*b = true
		return nil
	case "false", "0", "null":
		*b = false
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "1", "true", "True":
			*b = true
		default:
			*b = false
		}
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*b = n == 1
		return nil
	}

	*b = false
	return nil
}

// FlexPrice tolerates fares sent either as JSON numbers or numeric strings.
// Anything unparseable decodes to zero rather than failing the batch.
type FlexPrice float64

func (p *FlexPrice) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*p = FlexPrice(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if s == "" {
			*p = 0
			return nil
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			*p = FlexPrice(n)
			return nil
		}
	}

	*p = 0
	return nil
}
