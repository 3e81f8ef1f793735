package search

import (
	"strconv"
	"strings"
)

const identityDelim = "|"

// identityKey is the stage-1 key: the upstream ID when the provider assigned
// one, otherwise a composite of booking reference, cross-segment signature,
// route, outbound timestamps and cabin.
func identityKey(o FlightOffer) string {
	if o.ID != "" {
		return o.ID
	}
	return strings.Join([]string{
		o.BookingReference,
		o.signature,
		o.Origin,
		o.Destination,
		o.DepartureISO,
		o.ArrivalISO,
		o.CabinClass,
	}, identityDelim)
}

// fareBundleKey is the stage-2 key: flight number + fare class + price.
// It collapses offers whose stage-1 keys differ but which are commercially
// the same fare. Known risk: two genuinely different flights sharing a
// flight number and an identical fare (same number, different date) also
// collapse; this mirrors the upstream's own keying and is kept as-is.
// Offers missing any component are exempt from this stage.
func fareBundleKey(o FlightOffer) (string, bool) {
	if o.FlightNumber == "" || o.FareClass == "" || o.Price <= 0 {
		return "", false
	}
	return o.FlightNumber + identityDelim + o.FareClass + identityDelim +
		strconv.FormatFloat(o.Price, 'f', -1, 64), true
}

// Merge returns the union of the master set and a freshly normalized batch
// with duplicates removed. First-seen entries win and their relative order
// is preserved; ranking is a later explicit sort, never an implicit one.
// Merge is idempotent: merging an already-merged set changes nothing.
func Merge(master, batch []FlightOffer) []FlightOffer {
	combined := make([]FlightOffer, 0, len(master)+len(batch))
	combined = append(combined, master...)
	combined = append(combined, batch...)

	seenIdentity := make(map[string]struct{}, len(combined))
	seenBundle := make(map[string]struct{}, len(combined))
	merged := make([]FlightOffer, 0, len(combined))

	for _, o := range combined {
		key := identityKey(o)
		if _, dup := seenIdentity[key]; dup {
			continue
		}

		if bundle, ok := fareBundleKey(o); ok {
			if _, dup := seenBundle[bundle]; dup {
				// Still record the stage-1 key so the exact same record
				// arriving again cannot slip past a later bundle change.
				seenIdentity[key] = struct{}{}
				continue
			}
			seenBundle[bundle] = struct{}{}
		}

		seenIdentity[key] = struct{}{}
		merged = append(merged, o)
	}

	return merged
}
