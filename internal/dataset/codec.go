package dataset

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/crudecast/crudecast/internal/core"
	"github.com/crudecast/crudecast/internal/feature"
)

// Encode serializes a dataset as gzip-compressed JSON: an array of objects,
// one per feature row, with date and country followed by the feature fields
// in the dataset's canonical order. The returned hash is the sha256 of the
// uncompressed JSON, so identical rows always produce the same hash.
func Encode(ds *core.ProcessedDataset) (compressed []byte, hash string, err error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, row := range ds.Rows {
		if len(row.Values) != len(ds.FeatureNames) {
			return nil, "", core.WrapError(core.ErrInvariant,
				fmt.Errorf("row %s/%s has %d values, want %d",
					row.Country, row.Date, len(row.Values), len(ds.FeatureNames)))
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"date":"`)
		buf.WriteString(row.Date.String())
		buf.WriteString(`","country":"`)
		buf.WriteString(string(row.Country))
		buf.WriteByte('"')
		for j, name := range ds.FeatureNames {
			val, err := json.Marshal(row.Values[j])
			if err != nil {
				return nil, "", core.WrapError(core.ErrInvariant,
					fmt.Errorf("encoding %s for %s/%s: %w", name, row.Country, row.Date, err))
			}
			buf.WriteString(`,"`)
			buf.WriteString(name)
			buf.WriteString(`":`)
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')

	sum := sha256.Sum256(buf.Bytes())

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(buf.Bytes()); err != nil {
		return nil, "", fmt.Errorf("compressing dataset: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("compressing dataset: %w", err)
	}

	return gz.Bytes(), hex.EncodeToString(sum[:]), nil
}

// Decode parses a gzip-compressed dataset payload. The feature-name vector is
// reconstructed from the row fields in the canonical order; fields outside
// the known schema are dropped. Structural problems surface as Corrupt.
func Decode(compressed []byte) (*core.ProcessedDataset, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, core.WrapError(core.ErrCorrupt, err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, core.WrapError(core.ErrCorrupt, err)
	}
	if err := zr.Close(); err != nil {
		return nil, core.WrapError(core.ErrCorrupt, err)
	}

	var objects []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, core.WrapError(core.ErrCorrupt, err)
	}
	if len(objects) == 0 {
		return nil, core.WrapError(core.ErrCorrupt, fmt.Errorf("empty dataset payload"))
	}

	var featureNames []string
	for _, name := range feature.Names() {
		if _, ok := objects[0][name]; ok {
			featureNames = append(featureNames, name)
		}
	}
	if len(featureNames) == 0 {
		return nil, core.WrapError(core.ErrCorrupt, fmt.Errorf("no known feature fields"))
	}

	ds := &core.ProcessedDataset{FeatureNames: featureNames}
	for i, obj := range objects {
		row, err := decodeRow(obj, featureNames)
		if err != nil {
			return nil, core.WrapError(core.ErrCorrupt, fmt.Errorf("row %d: %w", i, err))
		}
		ds.Rows = append(ds.Rows, row)
	}

	sum := sha256.Sum256(raw)
	ds.ContentHash = hex.EncodeToString(sum[:])
	ds.TargetDate = ds.LatestDate()

	return ds, nil
}

func decodeRow(obj map[string]json.RawMessage, featureNames []string) (core.FeatureRow, error) {
	var row core.FeatureRow

	dateRaw, ok := obj["date"]
	if !ok {
		return row, fmt.Errorf("missing date")
	}
	if err := json.Unmarshal(dateRaw, &row.Date); err != nil {
		return row, err
	}

	countryRaw, ok := obj["country"]
	if !ok {
		return row, fmt.Errorf("missing country")
	}
	var country string
	if err := json.Unmarshal(countryRaw, &country); err != nil {
		return row, err
	}
	row.Country = core.CountryCode(country)

	row.Values = make([]float64, len(featureNames))
	for j, name := range featureNames {
		valRaw, ok := obj[name]
		if !ok {
			return row, fmt.Errorf("missing field %s", name)
		}
		if err := json.Unmarshal(valRaw, &row.Values[j]); err != nil {
			return row, fmt.Errorf("field %s: %w", name, err)
		}
	}

	return row, nil
}
