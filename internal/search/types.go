package search

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorCodeValidation      ErrorCode = "VALIDATION"
	ErrorCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrorCodeUpstreamFailure ErrorCode = "UPSTREAM_FAILURE"
	ErrorCodeInternalFailure ErrorCode = "INTERNAL_FAILURE"
)

type AppError struct {
	Status  int
	Code    ErrorCode
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newValidationError(msg string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: ErrorCodeValidation, Message: msg}
}

func newNotFoundError(msg string) *AppError {
	return &AppError{Status: http.StatusNotFound, Code: ErrorCodeNotFound, Message: msg}
}

// Criteria identifies one search. It is immutable for the lifetime of a
// session; changing any field means starting a new session.
type Criteria struct {
	Origin       string `json:"origin"`
	Destination  string `json:"destination"`
	OutboundDate string `json:"outbound_date"` // YYYY-MM-DD
	InboundDate  string `json:"inbound_date"`  // empty for one-way
	Adults       int    `json:"adults"`
	Children     int    `json:"children"`
	Infants      int    `json:"infants"`
	CabinClass   string `json:"cabin_class"`
	IsDirect     bool   `json:"is_direct"`
}

// Leg holds one direction of an itinerary with its display fields already
// derived, so the view layer never parses timestamps itself.
type Leg struct {
	Airline           string `json:"airline"`
	AirlineCode       string `json:"airline_code"`
	FlightNumber      string `json:"flight_number"`
	Origin            string `json:"origin"`
	Destination       string `json:"destination"`
	DepartureISO      string `json:"departure_iso"`
	ArrivalISO        string `json:"arrival_iso"`
	DepartureDisplay  string `json:"departure_display"` // "3:04 PM"
	ArrivalDisplay    string `json:"arrival_display"`
	Duration          string `json:"duration"` // "2h 30m"
	Stops             int    `json:"stops"`
	DepartureTerminal string `json:"departure_terminal,omitempty"`
	ArrivalTerminal   string `json:"arrival_terminal,omitempty"`
	FareClass         string `json:"fare_class,omitempty"`
}

// FlightOffer is the normalized unit of a search result. Offers are never
// mutated after normalization; the master set only grows by merge.
type FlightOffer struct {
	Leg

	ID               string  `json:"id,omitempty"`
	BookingReference string  `json:"booking_reference,omitempty"`
	RoundTrip        bool    `json:"round_trip"`
	Return           *Leg    `json:"return,omitempty"`
	CabinClass       string  `json:"cabin_class"`
	Price            float64 `json:"price"`
	Currency         string  `json:"currency"`

	// signature is the cross-segment identity component used by dedup when
	// the upstream did not assign an ID.
	signature string
}

type FilterOptions struct {
	PriceRange string   `json:"price_range,omitempty"` // "500-1000", "1500+", "" = any
	Stops      string   `json:"stops,omitempty"`       // "0", "1", "2+", "" = any
	Airlines   []string `json:"airlines,omitempty"`
}

type SortOptions struct {
	By    string `json:"by"`    // price, duration, departure_time, stops
	Order string `json:"order"` // asc, desc
}

// Snapshot is the reactive view handed to the UI layer. It is derived state;
// the master set inside the session stays the single source of truth.
type Snapshot struct {
	SessionID         string        `json:"session_id"`
	Results           []FlightOffer `json:"results"`
	IsLoading         bool          `json:"is_loading"`
	IsInitialLoad     bool          `json:"is_initial_load"`
	IsSearching       bool          `json:"is_searching"`
	IsFiltering       bool          `json:"is_filtering"`
	Error             string        `json:"error,omitempty"`
	AirlineOptions    []string      `json:"airline_options"`
	Currency          string        `json:"currency,omitempty"`
	TotalFlightsFound int           `json:"total_flights_found"`
	CanLoadMore       bool          `json:"can_load_more"`
	Page              int           `json:"page"`
}
