// Package tariff prices energy by time of use.
package tariff

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// Price is the price of a single hour.
type Price struct {
	TSStart       time.Time `json:"tsStart"`
	TSEnd         time.Time `json:"tsEnd"`
	DollarsPerKWH float64   `json:"dollarsPerKWH"`
	Peak          bool      `json:"peak"`
	Period        string    `json:"period,omitempty"`
}

// Tariff is a time-of-use tariff built from settings. The first period that
// contains an hour prices it; uncovered hours use the base rate.
type Tariff struct {
	mu       sync.Mutex
	base     float64
	periods  []types.TariffPeriod
	location *time.Location
}

// New returns a tariff configured from settings.
func New(settings types.Settings) (*Tariff, error) {
	t := &Tariff{}
	if err := t.ApplySettings(context.Background(), settings); err != nil {
		return nil, err
	}
	return t, nil
}

// ApplySettings replaces the periods and base rate. Period locations are
// resolved here so pricing never fails later.
func (t *Tariff) ApplySettings(ctx context.Context, settings types.Settings) error {
	var loc *time.Location
	if settings.Location != "" {
		var err error
		loc, err = time.LoadLocation(settings.Location)
		if err != nil {
			return fmt.Errorf("%w: failed to load location %s: %w", types.ErrInvalidArgument, settings.Location, err)
		}
	}

	periods := make([]types.TariffPeriod, len(settings.TariffPeriods))
	for i, p := range settings.TariffPeriods {
		if p.HourStart < 0 || p.HourEnd > 24 || p.HourStart >= p.HourEnd {
			return fmt.Errorf("%w: tariff period %q has invalid hours %d-%d", types.ErrInvalidArgument, p.Name, p.HourStart, p.HourEnd)
		}
		if p.DollarsPerKWH < 0 {
			return fmt.Errorf("%w: tariff period %q has a negative price", types.ErrInvalidArgument, p.Name)
		}
		if p.LocationPtr == nil {
			if p.Location != "" {
				pl, err := time.LoadLocation(p.Location)
				if err != nil {
					return fmt.Errorf("%w: failed to load location %s: %w", types.ErrInvalidArgument, p.Location, err)
				}
				p.LocationPtr = pl
			} else if loc != nil {
				// If the period has no location, give it the tariff location
				p.LocationPtr = loc
			}
		}
		periods[i] = p
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.base = settings.BaseDollarsPerKWH
	t.periods = periods
	t.location = loc
	return nil
}

// Location is the tariff's local time zone, UTC when unset.
func (t *Tariff) Location() *time.Location {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.location == nil {
		return time.UTC
	}
	return t.location
}

// PriceAt returns the price of the hour containing target.
func (t *Tariff) PriceAt(target time.Time) Price {
	t.mu.Lock()
	periods := t.periods
	base := t.base
	loc := t.location
	t.mu.Unlock()

	if loc != nil {
		target = target.In(loc)
	}
	// Truncate to the start of the hour in the target's location
	start := time.Date(target.Year(), target.Month(), target.Day(), target.Hour(), 0, 0, 0, target.Location())

	p := Price{
		TSStart:       start,
		TSEnd:         start.Add(time.Hour),
		DollarsPerKWH: base,
	}
	for i := range periods {
		// locations were resolved in ApplySettings
		if contains, _ := periods[i].Contains(start); contains {
			p.DollarsPerKWH = periods[i].DollarsPerKWH
			p.Peak = periods[i].Peak
			p.Period = periods[i].Name
			break
		}
	}
	return p
}

// IsPeak reports whether target falls in a peak period.
func (t *Tariff) IsPeak(target time.Time) bool {
	return t.PriceAt(target).Peak
}

// Prices returns the hourly prices that overlap [start, end).
func (t *Tariff) Prices(start, end time.Time) []Price {
	var prices []Price
	for current := start.Truncate(time.Hour); current.Before(end); current = current.Add(time.Hour) {
		prices = append(prices, t.PriceAt(current))
	}
	return prices
}

// PeakPrice is the highest price of any peak period, or the base rate if
// there are none.
func (t *Tariff) PeakPrice() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	price := t.base
	for _, p := range t.periods {
		if p.Peak {
			price = math.Max(price, p.DollarsPerKWH)
		}
	}
	return price
}

// OffPeakPrice is the lowest price of any off-peak period or the base rate.
func (t *Tariff) OffPeakPrice() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	price := t.base
	for _, p := range t.periods {
		if !p.Peak {
			price = math.Min(price, p.DollarsPerKWH)
		}
	}
	return price
}

// Spread is the difference between the peak and off-peak price.
func (t *Tariff) Spread() float64 {
	return math.Max(0, t.PeakPrice()-t.OffPeakPrice())
}
