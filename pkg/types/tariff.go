package types

import (
	"fmt"
	"time"
)

// TariffPeriod defines a time-of-use band and its price.
type TariffPeriod struct {
	Name          string         `json:"name" yaml:"name"`
	HourStart     int            `json:"hourStart" yaml:"hourStart"`
	HourEnd       int            `json:"hourEnd" yaml:"hourEnd"`
	DaysOfTheWeek []time.Weekday `json:"daysOfTheWeek" yaml:"daysOfTheWeek"`
	DollarsPerKWH float64        `json:"dollarsPerKWH" yaml:"dollarsPerKWH"`
	Peak          bool           `json:"peak" yaml:"peak"`
	Location      string         `json:"location" yaml:"location"`
	LocationPtr   *time.Location `json:"-" yaml:"-"`
}

// Contains checks if a time is within the period.
func (p *TariffPeriod) Contains(t time.Time) (bool, error) {
	if p.LocationPtr != nil {
		t = t.In(p.LocationPtr)
	} else if p.Location != "" {
		loc, err := time.LoadLocation(p.Location)
		if err != nil {
			return false, fmt.Errorf("failed to load location %s: %w", p.Location, err)
		}
		t = t.In(loc)
	}
	if h := t.Hour(); h < p.HourStart || h >= p.HourEnd {
		return false, nil
	}
	if len(p.DaysOfTheWeek) > 0 {
		var found bool
		dow := t.Weekday()
		for _, d := range p.DaysOfTheWeek {
			if d == dow {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}
