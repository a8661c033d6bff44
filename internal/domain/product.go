package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultNoData is the sentinel DPC rasters use for missing samples.
const DefaultNoData = -9999.0

// Cadence is a publication interval written as a pandas offset alias,
// e.g. "5T" (5 minutes), "1H" (hourly). The empty cadence means the product
// has no fixed schedule.
type Cadence string

// Cadence units.
const (
	UnitMinute = "T"
	UnitHour   = "H"
	UnitDay    = "D"
	UnitWeek   = "W"
	UnitMonth  = "M"
)

// cadenceRe matches "<count><unit>"; "MIN" is accepted as an alias of "T"
// and a missing count means 1.
var cadenceRe = regexp.MustCompile(`^(\d*)(MIN|T|H|D|W|M)$`)

// Parse splits the cadence into its count and canonical unit.
func (c Cadence) Parse() (int, string, error) {
	s := strings.ToUpper(strings.TrimSpace(string(c)))
	m := cadenceRe.FindStringSubmatch(s)
	if m == nil {
		return 0, "", fmt.Errorf("unsupported cadence %q", string(c))
	}
	n := 1
	if m[1] != "" {
		v, err := strconv.Atoi(m[1])
		if err != nil || v <= 0 {
			return 0, "", fmt.Errorf("unsupported cadence %q", string(c))
		}
		n = v
	}
	unit := m[2]
	if unit == "MIN" {
		unit = UnitMinute
	}
	return n, unit, nil
}

// Duration returns the fixed length of one cadence step. Monthly cadences
// have no fixed length and return an error.
func (c Cadence) Duration() (time.Duration, error) {
	n, unit, err := c.Parse()
	if err != nil {
		return 0, err
	}
	switch unit {
	case UnitMinute:
		return time.Duration(n) * time.Minute, nil
	case UnitHour:
		return time.Duration(n) * time.Hour, nil
	case UnitDay:
		return time.Duration(n) * 24 * time.Hour, nil
	case UnitWeek:
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("cadence %q has no fixed duration", string(c))
	}
}

// IsZero reports whether the product has no publication schedule.
func (c Cadence) IsZero() bool {
	return strings.TrimSpace(string(c)) == ""
}

// Product is the immutable description of one DPC data product.
type Product struct {
	Code            string
	Name            string
	Description     string
	UpdateFrequency Cadence
	MeasureType     string
	MeasureUnit     string
	NoData          float64
}

// Floor rounds t (in UTC) down to the nearest preceding cadence boundary.
// Products without a cadence are only truncated to the second.
func (p Product) Floor(t time.Time) time.Time {
	t = t.UTC()
	if p.UpdateFrequency.IsZero() {
		return t.Truncate(time.Second)
	}
	n, unit, err := p.UpdateFrequency.Parse()
	if err != nil {
		return t.Truncate(time.Second)
	}
	if unit == UnitMonth {
		months := (int(t.Month()) - 1) / n * n
		return time.Date(t.Year(), time.Month(months+1), 1, 0, 0, 0, 0, time.UTC)
	}
	d, _ := p.UpdateFrequency.Duration()
	return floorSinceEpoch(t, d)
}

var unixEpoch = time.Unix(0, 0).UTC()

// floorSinceEpoch counts boundaries from the Unix epoch; time.Truncate counts
// from year 1, which differs for periods that do not divide a day.
func floorSinceEpoch(t time.Time, d time.Duration) time.Time {
	since := t.Sub(unixEpoch)
	rem := since % d
	if rem < 0 {
		rem += d
	}
	return t.Add(-rem)
}

// Now returns the current instant floored to the product cadence.
func (p Product) Now() time.Time {
	return p.Floor(Now())
}

// Steps lists every cadence boundary in [from, to], both floored first.
func (p Product) Steps(from, to time.Time) ([]time.Time, error) {
	d, err := p.UpdateFrequency.Duration()
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", p.Code, err)
	}
	from, to = p.Floor(from), p.Floor(to)
	if to.Before(from) {
		return nil, nil
	}
	steps := make([]time.Time, 0, int(to.Sub(from)/d)+1)
	for t := from; !t.After(to); t = t.Add(d) {
		steps = append(steps, t)
	}
	return steps, nil
}

// ProductInfo is the JSON summary of a product served by the product listing.
type ProductInfo struct {
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	UpdateFrequency string     `json:"update_frequency"`
	MeasureType     string     `json:"measure_type,omitempty"`
	MeasureUnit     string     `json:"measure_unit,omitempty"`
	LastAvailable   *time.Time `json:"last_available_datetime,omitempty"`
}

// Info summarizes the product, optionally with its long description.
func (p Product) Info(withDescription bool) ProductInfo {
	info := ProductInfo{
		Code:            p.Code,
		Name:            p.Name,
		UpdateFrequency: string(p.UpdateFrequency),
		MeasureType:     p.MeasureType,
		MeasureUnit:     p.MeasureUnit,
	}
	if withDescription {
		info.Description = p.Description
	}
	return info
}
