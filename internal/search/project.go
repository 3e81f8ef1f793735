package search

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Projection is the derived view over one master set: the visible window
// plus the facet metadata the UI renders around it.
type Projection struct {
	Visible        []FlightOffer
	AirlineOptions []string
	Currency       string
	TotalFlights   int // price-bearing offers, before filters
	FilteredCount  int // offers passing the active filters, before the window
}

// Project recomputes the visible result window. It is a pure function of
// the master set, the active filters and sort, and the growing page window;
// it never touches the network.
func Project(master []FlightOffer, filters FilterOptions, sortOpt SortOptions, page, pageSize int) Projection {
	// Zero-priced offers stay in the master set for anomaly detection but
	// are never shown.
	priced := make([]FlightOffer, 0, len(master))
	for _, o := range master {
		if o.Price > 0 {
			priced = append(priced, o)
		}
	}

	proj := Projection{
		AirlineOptions: airlineOptions(priced),
		Currency:       firstCurrency(priced),
		TotalFlights:   len(priced),
	}

	filtered := applyFilters(priced, filters)
	proj.FilteredCount = len(filtered)

	sorted := applySorting(filtered, sortOpt)

	window := page * pageSize
	if window <= 0 || window > len(sorted) {
		window = len(sorted)
	}
	proj.Visible = sorted[:window]

	return proj
}

// filterContext holds parsed bounds so we don't re-parse inside the loop
type filterContext struct {
	opts     FilterOptions
	priceLow float64
	priceHi  float64
	hasPrice bool
}

func newFilterContext(opts FilterOptions) *filterContext {
	fc := &filterContext{opts: opts}
	fc.priceLow, fc.priceHi, fc.hasPrice = parsePriceRange(opts.PriceRange)
	return fc
}

func applyFilters(offers []FlightOffer, opts FilterOptions) []FlightOffer {
	fc := newFilterContext(opts)

	filtered := make([]FlightOffer, 0, len(offers))
	for _, o := range offers {
		if fc.matches(o) {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

// matches returns true only if ALL active filters pass
func (fc *filterContext) matches(o FlightOffer) bool {
	if fc.hasPrice {
		if o.Price < fc.priceLow || o.Price > fc.priceHi {
			return false
		}
	}

	switch fc.opts.Stops {
	case "", "any":
	case "2+":
		if o.Stops < 2 {
			return false
		}
	default:
		if want, err := strconv.Atoi(fc.opts.Stops); err == nil && o.Stops != want {
			return false
		}
	}

	if len(fc.opts.Airlines) > 0 {
		matched := false
		for _, airline := range fc.opts.Airlines {
			if strings.EqualFold(o.Airline, airline) || strings.EqualFold(o.AirlineCode, airline) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// parsePriceRange understands "500-1000" (inclusive) and "1500+" (no upper
// bound). Anything else disables the price filter.
func parsePriceRange(bucket string) (low, high float64, ok bool) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" || bucket == "any" {
		return 0, 0, false
	}

	if strings.HasSuffix(bucket, "+") {
		low, err := strconv.ParseFloat(strings.TrimSuffix(bucket, "+"), 64)
		if err != nil {
			return 0, 0, false
		}
		return low, math.Inf(1), true
	}

	parts := strings.SplitN(bucket, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	low, errLow := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	high, errHigh := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLow != nil || errHigh != nil {
		return 0, 0, false
	}
	return low, high, true
}

// Using Sort Stable to prevent UI jumping when values are equal
func applySorting(offers []FlightOffer, sortOpt SortOptions) []FlightOffer {
	if len(offers) <= 1 {
		return offers
	}

	sorted := make([]FlightOffer, len(offers))
	copy(sorted, offers)

	desc := sortOpt.Order == "desc"

	switch sortOpt.By {
	case "", "price":
		sort.SliceStable(sorted, func(i, j int) bool {
			if desc {
				return sorted[i].Price > sorted[j].Price
			}
			return sorted[i].Price < sorted[j].Price
		})
	case "duration":
		sort.SliceStable(sorted, func(i, j int) bool {
			di, dj := durationMinutes(sorted[i].Duration), durationMinutes(sorted[j].Duration)
			if desc {
				return di > dj
			}
			return di < dj
		})
	case "departure_time":
		sort.SliceStable(sorted, func(i, j int) bool {
			di, dj := clockMinutes(sorted[i].DepartureDisplay), clockMinutes(sorted[j].DepartureDisplay)
			if desc {
				return di > dj
			}
			return di < dj
		})
	case "stops":
		sort.SliceStable(sorted, func(i, j int) bool {
			if desc {
				return sorted[i].Stops > sorted[j].Stops
			}
			return sorted[i].Stops < sorted[j].Stops
		})
	}

	return sorted
}

// durationMinutes parses a "2h 30m" display string. Unparseable values sort
// as zero, which floats them to the front of an ascending sort.
func durationMinutes(formatted string) int {
	d, err := time.ParseDuration(strings.ReplaceAll(formatted, " ", ""))
	if err != nil {
		return 0
	}
	return int(d.Minutes())
}

// clockMinutes parses a "3:04 PM" display string into minutes past midnight.
func clockMinutes(display string) int {
	t, err := time.Parse("3:04 PM", display)
	if err != nil {
		return 0
	}
	return t.Hour()*60 + t.Minute()
}

func airlineOptions(offers []FlightOffer) []string {
	seen := make(map[string]struct{}, len(offers))
	options := make([]string, 0, len(offers))
	for _, o := range offers {
		if o.Airline == "" {
			continue
		}
		if _, dup := seen[o.Airline]; dup {
			continue
		}
		seen[o.Airline] = struct{}{}
		options = append(options, o.Airline)
	}
	sort.Strings(options)
	return options
}

func firstCurrency(offers []FlightOffer) string {
	for _, o := range offers {
		if o.Currency != "" {
			return o.Currency
		}
	}
	return ""
}
