package model

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

const wheatCSV = `crop,intercept,area,production,rainfall,fertilizer,pesticide,residual_std
Wheat,1000,10,200,5,2,-10,100
Rice,500,0,0,0,0,0,0
`

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coefficients.csv")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLoadTableCSVAndPredict(t *testing.T) {
	m, err := LoadTable(writeCSV(t, wheatCSV), "table-v1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := m.Crops(); len(got) != 2 || got[0] != "rice" || got[1] != "wheat" {
		t.Fatalf("unexpected crops: %v", got)
	}

	out, err := m.Predict(context.Background(), Input{
		Crop: "WHEAT", Area: 2, Production: 5, Rainfall: 120, Fertilizer: 50, Pesticide: 5,
	})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !approx(out.PredictedYield, 2670) {
		t.Fatalf("expected yield 2670, got %v", out.PredictedYield)
	}
	if !approx(out.ConfidenceInterval.Lower, 2474) || !approx(out.ConfidenceInterval.Upper, 2866) {
		t.Fatalf("unexpected interval: %+v", out.ConfidenceInterval)
	}
	if out.ModelVersion != "table-v1" {
		t.Fatalf("unexpected version %q", out.ModelVersion)
	}

	var sum float64
	for _, v := range out.FeatureImportance {
		sum += v
	}
	if !approx(sum, 1) {
		t.Fatalf("feature importance should sum to 1, got %v", sum)
	}
	if !approx(out.FeatureImportance[FeatureProduction], 1000.0/1770.0) {
		t.Fatalf("unexpected production importance %v", out.FeatureImportance[FeatureProduction])
	}
}

func TestTablePredictAllZeroContributions(t *testing.T) {
	m, err := LoadTable(writeCSV(t, wheatCSV), "v")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out, err := m.Predict(context.Background(), Input{Crop: "rice", Area: 1, Production: 1})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if out.PredictedYield != 500 || out.ConfidenceInterval.Lower != 500 || out.ConfidenceInterval.Upper != 500 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	for _, f := range Features {
		if !approx(out.FeatureImportance[f], 0.2) {
			t.Fatalf("expected equal split, got %v", out.FeatureImportance)
		}
	}
}

func TestTablePredictUnknownCrop(t *testing.T) {
	m, err := LoadTable(writeCSV(t, wheatCSV), "v")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err = m.Predict(context.Background(), Input{Crop: "quinoa", Area: 1, Production: 1})
	if !errors.Is(err, ErrCropNotRecognized) {
		t.Fatalf("expected ErrCropNotRecognized, got %v", err)
	}
}

func TestLoadTableRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing column": "crop,intercept,area\nwheat,1,2\n",
		"bad number":     "crop,intercept,area,production,rainfall,fertilizer,pesticide,residual_std\nwheat,x,1,1,1,1,1,1\n",
		"duplicate crop": "crop,intercept,area,production,rainfall,fertilizer,pesticide,residual_std\nwheat,1,1,1,1,1,1,1\nWheat,1,1,1,1,1,1,1\n",
		"header only":    "crop,intercept,area,production,rainfall,fertilizer,pesticide,residual_std\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadTable(writeCSV(t, body), "v"); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadTableXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coefficients.xlsx")

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Crop", "Intercept", "Area", "Production", "Rainfall", "Fertilizer", "Pesticide", "Residual_Std"},
		{"maize", 300, 0, 100, 1, 0, 0, 50},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = f.Close()

	m, err := LoadTable(path, "xlsx-v2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out, err := m.Predict(context.Background(), Input{Crop: "Maize", Area: 1, Production: 3, Rainfall: 100})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !approx(out.PredictedYield, 700) {
		t.Fatalf("expected 700, got %v", out.PredictedYield)
	}
}

func TestLoadTableUnsupportedExtension(t *testing.T) {
	if _, err := LoadTable("coefficients.json", "v"); err == nil {
		t.Fatal("expected an error for unsupported format")
	}
}

func TestUnavailablePredictor(t *testing.T) {
	var p Predictor = Unavailable{}
	if p.Available() {
		t.Fatal("expected unavailable")
	}
	if _, err := p.Predict(context.Background(), Input{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestOutcomeValidate(t *testing.T) {
	bad := []Outcome{
		{PredictedYield: math.NaN()},
		{PredictedYield: 1, ConfidenceInterval: Interval{Lower: 2, Upper: 1}},
		{PredictedYield: 1, ConfidenceInterval: Interval{Lower: 0, Upper: math.Inf(1)}},
	}
	for _, o := range bad {
		if err := o.Validate(); !errors.Is(err, ErrInvalidOutcome) {
			t.Fatalf("expected ErrInvalidOutcome for %+v", o)
		}
	}
}
