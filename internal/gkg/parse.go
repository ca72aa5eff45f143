package gkg

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/crudecast/crudecast/internal/core"
)

// Tab-delimited GKG column positions. The bundle schema is fixed; only these
// columns feed the pipeline.
const (
	colTimestamp = 1
	colSource    = 3
	colThemes    = 8
	colLocations = 10
	colTone      = 16

	minColumns = colTone + 1
)

// maxThemesPerRecord caps how many theme tokens a single record contributes.
const maxThemesPerRecord = 10

const timestampLayout = "20060102150405"

// lines can exceed bufio's default token size by a wide margin
const maxLineBytes = 4 * 1024 * 1024

// ParseBundle parses one tab-delimited bundle into event records. Rows that
// fail to parse or whose timestamp falls outside the target day are dropped
// and counted; a malformed row never fails the bundle.
func ParseBundle(data []byte, day core.Date) (records []core.EventRecord, dropped int) {
	dayStart := day.Time()
	dayEnd := dayStart.AddDate(0, 0, 1)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		rec, ok := parseLine(line)
		if !ok {
			dropped++
			continue
		}
		if rec.Timestamp.Before(dayStart) || !rec.Timestamp.Before(dayEnd) {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		// A torn tail row counts as one drop; everything scanned before it
		// is kept.
		dropped++
	}

	return records, dropped
}

func parseLine(line string) (core.EventRecord, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < minColumns {
		return core.EventRecord{}, false
	}

	ts, err := time.ParseInLocation(timestampLayout, fields[colTimestamp], time.UTC)
	if err != nil {
		return core.EventRecord{}, false
	}

	countries := extractCountries(fields[colLocations])
	if len(countries) == 0 {
		return core.EventRecord{}, false
	}

	tone, ok := extractTone(fields[colTone])
	if !ok {
		return core.EventRecord{}, false
	}

	return core.EventRecord{
		Timestamp: ts,
		SourceID:  fields[colSource],
		Countries: countries,
		Tone:      tone,
		Themes:    extractThemes(fields[colThemes]),
	}, true
}

// extractCountries pulls the deduplicated set of three-letter codes from the
// semi-structured locations field. Entries look like
// <type>#<name>#<code2>#<code3>#...; the third code slot is kept when it is a
// non-empty three-letter value.
func extractCountries(locations string) []core.CountryCode {
	if locations == "" {
		return nil
	}

	var out []core.CountryCode
	seen := make(map[core.CountryCode]struct{})

	for _, entry := range strings.Split(locations, ";") {
		parts := strings.Split(entry, "#")
		if len(parts) < 4 {
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(parts[3]))
		if len(code) != 3 {
			continue
		}
		cc := core.CountryCode(code)
		if _, dup := seen[cc]; dup {
			continue
		}
		seen[cc] = struct{}{}
		out = append(out, cc)
	}

	return out
}

// extractTone returns the first numeric component of the comma-separated tone
// field. The remaining components (positivity, negativity, polarity) are not
// used.
func extractTone(tone string) (float64, bool) {
	first, _, _ := strings.Cut(tone, ",")
	v, err := strconv.ParseFloat(strings.TrimSpace(first), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// extractThemes returns the deduplicated theme tokens. Enhanced tokens carry a
// trailing ,offset which is trimmed; at most maxThemesPerRecord are kept.
func extractThemes(themes string) []string {
	if themes == "" {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})

	for _, raw := range strings.Split(themes, ";") {
		token, _, _ := strings.Cut(raw, ",")
		token = strings.ToUpper(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
		if len(out) == maxThemesPerRecord {
			break
		}
	}

	return out
}
