package search

import (
	"fmt"
	"strings"
	"time"

	"tripfare/pkg/pricing"
)

const signatureDelim = "~"

// isoLayouts are tried in order when parsing provider timestamps. The
// provider is not consistent about offsets across record shapes.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Normalize converts one raw upstream trip fragment into a FlightOffer.
// It is a pure transform: malformed timestamp fields degrade to empty
// display strings instead of failing, because a partial record is worth
// more than a dropped one.
func Normalize(t pricing.Trip) FlightOffer {
	segments := t.Trip

	var outbound pricing.Segment
	if len(segments) > 0 {
		outbound = segments[0]
	} else {
		// Flat shape: the leg fields sit directly on the fragment.
		outbound = t.Segment
	}

	offer := FlightOffer{
		Leg:              buildLeg(outbound),
		ID:               t.ID,
		BookingReference: t.BookingReference,
		RoundTrip:        bool(t.RoundTrip),
		CabinClass:       t.CabinClass,
		Price:            resolvePrice(t, segments),
		Currency:         t.Currency,
		signature:        crossSegmentSignature(t, segments),
	}

	// The second segment entry is the return leg. A set round-trip flag
	// without a second entry attaches no return leg.
	if offer.RoundTrip && len(segments) > 1 {
		ret := buildLeg(segments[1])
		offer.Return = &ret
	}

	return offer
}

func buildLeg(s pricing.Segment) Leg {
	leg := Leg{
		Airline:           s.Airline,
		AirlineCode:       s.AirlineCode,
		FlightNumber:      s.FlightNumber,
		Origin:            s.Origin,
		Destination:       s.Destination,
		DepartureISO:      s.DepartureTime,
		ArrivalISO:        s.ArrivalTime,
		Stops:             s.Stops,
		DepartureTerminal: s.DepartureTerminal,
		ArrivalTerminal:   s.ArrivalTerminal,
		FareClass:         s.FareClass,
	}

	if leg.AirlineCode == "" && len(leg.FlightNumber) >= 2 {
		leg.AirlineCode = leg.FlightNumber[0:2]
	}

	dep, depOK := parseISOTime(s.DepartureTime)
	arr, arrOK := parseISOTime(s.ArrivalTime)

	if depOK {
		leg.DepartureDisplay = dep.Format("3:04 PM")
	}
	if arrOK {
		leg.ArrivalDisplay = arr.Format("3:04 PM")
	}
	if depOK && arrOK && arr.After(dep) {
		totalMinutes := int(arr.Sub(dep).Minutes())
		leg.Duration = fmt.Sprintf("%dh %dm", totalMinutes/60, totalMinutes%60)
	}

	return leg
}

// resolvePrice picks the fare by preference order: the explicit actual fare,
// then the generic price, then the first segment's price, then the gross
// fare. Absent everywhere means zero, which flags the record as still
// settling upstream.
func resolvePrice(t pricing.Trip, segments []pricing.Segment) float64 {
	if t.ActualFare > 0 {
		return float64(t.ActualFare)
	}
	if t.TripPrice > 0 {
		return float64(t.TripPrice)
	}
	if len(segments) > 0 && segments[0].Price > 0 {
		return float64(segments[0].Price)
	}
	if t.GrossFare > 0 {
		return float64(t.GrossFare)
	}
	return 0
}

// crossSegmentSignature joins each segment's flight number, departure
// timestamp and route into one string, so itineraries with the same legs
// collapse to the same identity even without an upstream ID.
func crossSegmentSignature(t pricing.Trip, segments []pricing.Segment) string {
	if len(segments) == 0 {
		segments = []pricing.Segment{t.Segment}
	}

	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, strings.Join([]string{
			s.FlightNumber,
			s.DepartureTime,
			s.Origin,
			s.Destination,
		}, signatureDelim))
	}
	return strings.Join(parts, signatureDelim)
}

func parseISOTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// NormalizeBatch maps one raw results batch into offers, preserving the
// upstream order so first-seen dedup stays deterministic.
func NormalizeBatch(trips []pricing.Trip) []FlightOffer {
	offers := make([]FlightOffer, 0, len(trips))
	for _, t := range trips {
		offers = append(offers, Normalize(t))
	}
	return offers
}
