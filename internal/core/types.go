package core

import (
	"fmt"
	"time"
)

// CountryCode is a canonical three-letter ISO 3166-1 country identifier.
type CountryCode string

// Theme is one of the closed set of event theme categories.
type Theme string

const (
	ThemeEnergy    Theme = "energy"
	ThemeConflict  Theme = "conflict"
	ThemeSanctions Theme = "sanctions"
	ThemeTrade     Theme = "trade"
	ThemeEconomy   Theme = "economy"
	ThemePolicy    Theme = "policy"
)

// AllThemes lists the theme categories in canonical order.
var AllThemes = []Theme{
	ThemeEnergy, ThemeConflict, ThemeSanctions, ThemeTrade, ThemeEconomy, ThemePolicy,
}

// Date is a calendar day in UTC. The zero value is not a valid date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates a time to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return Date{Year: u.Year(), Month: u.Month(), Day: u.Day()}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Before reports whether d precedes other.
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// After reports whether d follows other.
func (d Date) After(other Date) bool {
	return d.Time().After(other.Time())
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d == Date{}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Time().Format("2006-01-02")
}

// Compact formats the date as YYYYMMDD, the form used in artifact keys.
func (d Date) Compact() string {
	return d.Time().Format("20060102")
}

// MarshalJSON encodes the date as a YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date literal %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// EventRecord is one parsed global-event record for a single day.
type EventRecord struct {
	Timestamp time.Time
	SourceID  string
	Countries []CountryCode
	Tone      float64
	Themes    []string
}

// AggregatedEvent holds per country-day event statistics.
type AggregatedEvent struct {
	Country       CountryCode
	Date          Date
	EventCount    int
	AvgTone       float64
	ToneStd       float64
	UniqueSources int
	ThemeCounts   map[Theme]int
}

// PricePoint is one trading day of instrument closes.
type PricePoint struct {
	Date       Date
	WTIClose   float64
	BrentClose float64
}

// AlignedRow is one cell of the country-date grid: zero-filled event
// statistics joined with forward-filled prices.
type AlignedRow struct {
	Country       CountryCode
	Date          Date
	EventCount    int
	AvgTone       float64
	ToneStd       float64
	UniqueSources int
	ThemeCounts   map[Theme]int
	WTIPrice      float64
	BrentPrice    float64
}

// FeatureRow is an aligned row extended with derived features. Values are
// ordered by the dataset's feature-name vector.
type FeatureRow struct {
	Country CountryCode
	Date    Date
	Values  []float64
}

// ProcessedDataset is the immutable per-day publication of feature rows.
type ProcessedDataset struct {
	TargetDate   Date
	FeatureNames []string
	Rows         []FeatureRow
	ContentHash  string
}

// LatestDate returns the greatest date present in the dataset.
func (d *ProcessedDataset) LatestDate() Date {
	var latest Date
	for _, row := range d.Rows {
		if latest.IsZero() || row.Date.After(latest) {
			latest = row.Date
		}
	}
	return latest
}

// CountryContribution is one country's share of an aggregate prediction.
type CountryContribution struct {
	Country         CountryCode `json:"country"`
	RawDelta        float64     `json:"raw_delta"`
	AttentionWeight float64     `json:"attention_weight"`
	Contribution    float64     `json:"contribution"`
	Percentage      float64     `json:"percentage"`
}

// PredictionReport is the output of one inference call.
type PredictionReport struct {
	TargetDate           Date                                `json:"target_date"`
	ReferenceClose       float64                             `json:"reference_close"`
	PredictedDelta       float64                             `json:"predicted_delta"`
	PredictedClose       float64                             `json:"predicted_close"`
	Direction            string                              `json:"predicted_direction"`
	PerCountry           map[CountryCode]CountryContribution `json:"per_country"`
	TopContributors      []CountryContribution               `json:"top_contributors"`
	TotalAbsContribution float64                             `json:"total_abs_contribution"`
	NumCountries         int                                 `json:"num_countries"`
	SkippedCountries     []CountryCode                       `json:"skipped_countries,omitempty"`
	ModelVersion         string                              `json:"model_version"`
}

// Universe is the fixed, ordered set of country codes the model was trained
// over. The order is canonical: adjacency rows and inference matrices follow it.
type Universe struct {
	codes []CountryCode
	index map[CountryCode]int
}

// NewUniverse builds a universe preserving the given order. Duplicates are
// dropped, keeping the first occurrence.
func NewUniverse(codes []CountryCode) *Universe {
	u := &Universe{index: make(map[CountryCode]int, len(codes))}
	for _, c := range codes {
		if _, seen := u.index[c]; seen {
			continue
		}
		u.index[c] = len(u.codes)
		u.codes = append(u.codes, c)
	}
	return u
}

// Contains reports membership.
func (u *Universe) Contains(c CountryCode) bool {
	_, ok := u.index[c]
	return ok
}

// Index returns the canonical position of a code, or -1.
func (u *Universe) Index(c CountryCode) int {
	if i, ok := u.index[c]; ok {
		return i
	}
	return -1
}

// Codes returns the codes in canonical order. The caller must not mutate it.
func (u *Universe) Codes() []CountryCode {
	return u.codes
}

// Len returns the universe size.
func (u *Universe) Len() int {
	return len(u.codes)
}
