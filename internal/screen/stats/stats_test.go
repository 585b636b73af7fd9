package stats

import "testing"

func TestCalculate_BasicDistribution(t *testing.T) {
	d := Calculate([]float64{10, 15, 20, 25, 30})
	if d.Min != 10 || d.Max != 30 {
		t.Fatalf("min/max = %v/%v, want 10/30", d.Min, d.Max)
	}
	if d.Mean != 20 {
		t.Fatalf("mean = %v, want 20", d.Mean)
	}
	if d.Median != 20 {
		t.Fatalf("median = %v, want 20", d.Median)
	}
	if d.DataPoints != 5 {
		t.Fatalf("data points = %d, want 5", d.DataPoints)
	}
}

func TestCalculate_FiltersNonPositive(t *testing.T) {
	d := Calculate([]float64{-5, 0, 10, 20})
	if d.DataPoints != 2 {
		t.Fatalf("data points = %d, want 2 (negative/zero filtered)", d.DataPoints)
	}
	if d.Min != 10 || d.Max != 20 {
		t.Fatalf("min/max = %v/%v, want 10/20", d.Min, d.Max)
	}
}

func TestCalculate_Empty(t *testing.T) {
	d := Calculate(nil)
	if d.DataPoints != 0 {
		t.Fatalf("data points = %d, want 0", d.DataPoints)
	}
}

func TestZScore_NoSpreadReturnsZero(t *testing.T) {
	d := Calculate([]float64{15})
	if got := ZScore(15, d); got != 0 {
		t.Fatalf("z-score = %v, want 0 for single-point distribution", got)
	}
}

func TestZScore_AboveAndBelowMean(t *testing.T) {
	d := Calculate([]float64{10, 20, 30})
	below := ZScore(10, d)
	above := ZScore(30, d)
	if below >= 0 {
		t.Fatalf("z-score below mean = %v, want negative", below)
	}
	if above <= 0 {
		t.Fatalf("z-score above mean = %v, want positive", above)
	}
}

func TestPercentileRank_LowestIsZero(t *testing.T) {
	sorted := []float64{10, 15, 20, 25, 30}
	if got := PercentileRank(10, sorted); got != 0 {
		t.Fatalf("percentile rank = %v, want 0 for the lowest value", got)
	}
}

func TestInBottomDecile(t *testing.T) {
	sorted := make([]float64, 100)
	for i := range sorted {
		sorted[i] = float64(i + 1)
	}
	d := Calculate(sorted)
	if !InBottomDecile(1, d, sorted) {
		t.Fatal("lowest of 100 values should be in the bottom decile")
	}
	if InBottomDecile(100, d, sorted) {
		t.Fatal("highest of 100 values should not be in the bottom decile")
	}
}
