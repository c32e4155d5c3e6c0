package model

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// z-score for a two-sided 95% interval.
const z95 = 1.96

var tableColumns = []string{
	"crop", "intercept",
	FeatureArea, FeatureProduction, FeatureRainfall, FeatureFertilizer, FeaturePesticide,
	"residual_std",
}

// Coefficients is one crop's linear model.
type Coefficients struct {
	Intercept   float64
	Weights     map[string]float64
	ResidualStd float64
}

// TableModel is a per-crop linear model loaded once from a coefficient table.
// It is read-only after construction and safe for concurrent use.
type TableModel struct {
	version string
	crops   map[string]Coefficients
}

// NewTableModel builds a model from coefficients keyed by crop name.
func NewTableModel(version string, crops map[string]Coefficients) (*TableModel, error) {
	if len(crops) == 0 {
		return nil, errors.New("coefficient table has no crops")
	}
	normalized := make(map[string]Coefficients, len(crops))
	for name, c := range crops {
		key := normalizeCrop(name)
		if key == "" {
			return nil, errors.New("coefficient table has an empty crop name")
		}
		if _, dup := normalized[key]; dup {
			return nil, fmt.Errorf("duplicate crop %q in coefficient table", name)
		}
		if c.ResidualStd < 0 {
			return nil, fmt.Errorf("crop %q: residual_std must not be negative", name)
		}
		normalized[key] = c
	}
	return &TableModel{version: version, crops: normalized}, nil
}

// LoadTable reads a coefficient table from a .csv or .xlsx file.
func LoadTable(path, version string) (*TableModel, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("unsupported coefficient table format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	crops, err := parseRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewTableModel(version, crops)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func parseRows(rows [][]string) (map[string]Coefficients, error) {
	if len(rows) < 2 {
		return nil, errors.New("coefficient table needs a header and at least one row")
	}

	norm := func(s string) string {
		s = strings.TrimSpace(s)
		s = strings.TrimPrefix(s, "\uFEFF")
		return strings.ToLower(s)
	}
	idx := map[string]int{}
	for i, h := range rows[0] {
		idx[norm(h)] = i
	}
	for _, col := range tableColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	num := func(row []string, col string, line int) (float64, error) {
		i := idx[col]
		if i >= len(row) || strings.TrimSpace(row[i]) == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return 0, fmt.Errorf("row %d column %s: %w", line, col, err)
		}
		return v, nil
	}

	crops := map[string]Coefficients{}
	for n, row := range rows[1:] {
		line := n + 2
		if idx["crop"] >= len(row) || strings.TrimSpace(row[idx["crop"]]) == "" {
			continue
		}
		name := strings.TrimSpace(row[idx["crop"]])

		c := Coefficients{Weights: make(map[string]float64, len(Features))}
		var err error
		if c.Intercept, err = num(row, "intercept", line); err != nil {
			return nil, err
		}
		for _, f := range Features {
			if c.Weights[f], err = num(row, f, line); err != nil {
				return nil, err
			}
		}
		if c.ResidualStd, err = num(row, "residual_std", line); err != nil {
			return nil, err
		}
		if _, dup := crops[name]; dup {
			return nil, fmt.Errorf("row %d: duplicate crop %q", line, name)
		}
		crops[name] = c
	}
	return crops, nil
}

func (m *TableModel) Available() bool { return true }
func (m *TableModel) Version() string { return m.version }
func (m *TableModel) Close() error    { return nil }

// Crops returns the supported crop names, sorted.
func (m *TableModel) Crops() []string {
	out := make([]string, 0, len(m.crops))
	for name := range m.crops {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Predict evaluates the crop's linear model. Values are returned unrounded.
func (m *TableModel) Predict(ctx context.Context, in Input) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	c, ok := m.crops[normalizeCrop(in.Crop)]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrCropNotRecognized, in.Crop)
	}

	values := in.values()
	yield := c.Intercept
	contrib := make(map[string]float64, len(Features))
	var total float64
	for _, f := range Features {
		term := c.Weights[f] * values[f]
		yield += term
		contrib[f] = math.Abs(term)
		total += contrib[f]
	}
	yield = math.Max(yield, 0)

	importance := make(map[string]float64, len(Features))
	for _, f := range Features {
		if total == 0 {
			importance[f] = 1 / float64(len(Features))
			continue
		}
		importance[f] = contrib[f] / total
	}

	margin := z95 * c.ResidualStd
	out := Outcome{
		PredictedYield: yield,
		ConfidenceInterval: Interval{
			Lower: math.Max(yield-margin, 0),
			Upper: yield + margin,
		},
		ModelVersion:      m.version,
		FeatureImportance: importance,
	}
	if err := out.Validate(); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func normalizeCrop(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
