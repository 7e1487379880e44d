package analysis

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPearson(t *testing.T) {
	tests := []struct {
		name string
		x, y []float64
		want float64
	}{
		{"perfect positive", []float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}, 1},
		{"perfect negative", []float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}, -1},
		{"constant series", []float64{1, 2, 3}, []float64{5, 5, 5}, 0},
		{"length mismatch", []float64{1, 2}, []float64{1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Pearson(tt.x, tt.y); !almostEqual(got, tt.want) {
				t.Errorf("Pearson = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrend(t *testing.T) {
	slope, r2 := Trend([]float64{1, 2, 3, 4, 5})
	if !almostEqual(slope, 1) {
		t.Errorf("slope = %v, want 1", slope)
	}
	if !almostEqual(r2, 1) {
		t.Errorf("r2 = %v, want 1", r2)
	}

	slope, r2 = Trend([]float64{7, 7, 7})
	if !almostEqual(slope, 0) || !almostEqual(r2, 0) {
		t.Errorf("constant series: slope = %v r2 = %v", slope, r2)
	}

	if slope, _ := Trend([]float64{5}); slope != 0 {
		t.Errorf("single point slope = %v", slope)
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		vals []float64
		want float64
	}{
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
		{[]float64{5}, 5},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := Median(tt.vals); !almostEqual(got, tt.want) {
			t.Errorf("Median(%v) = %v, want %v", tt.vals, got, tt.want)
		}
	}
}

func TestQuantile(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	tests := []struct {
		q    float64
		want float64
	}{
		{0, 1},
		{0.25, 2},
		{0.5, 3},
		{0.75, 4},
		{1, 5},
	}
	for _, tt := range tests {
		if got := Quantile(vals, tt.q); !almostEqual(got, tt.want) {
			t.Errorf("Quantile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}

	// Interpolation between ranks.
	if got := Quantile([]float64{1, 2, 3, 4}, 0.5); !almostEqual(got, 2.5) {
		t.Errorf("interpolated median = %v, want 2.5", got)
	}
}

func TestStdDev(t *testing.T) {
	if got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}); !almostEqual(got, 2) {
		t.Errorf("StdDev = %v, want 2", got)
	}
	if got := StdDev(nil); got != 0 {
		t.Errorf("StdDev(nil) = %v", got)
	}
}

func TestMutualInformation_Bounds(t *testing.T) {
	x := make([]float64, 100)
	for i := range x {
		x[i] = float64(i)
	}

	// Perfect dependence scores high.
	if mi := MutualInformation(x, x); mi < 0.9 || mi > 1 {
		t.Errorf("MI(x, x) = %v, want near 1", mi)
	}

	// A constant series carries no information.
	constant := make([]float64, 100)
	if mi := MutualInformation(x, constant); mi != 0 {
		t.Errorf("MI(x, const) = %v, want 0", mi)
	}

	// Non-linear dependence Pearson misses is still visible.
	y := make([]float64, 100)
	for i := range y {
		v := float64(i) - 50
		y[i] = v * v
	}
	if mi := MutualInformation(x, y); mi < 0.3 {
		t.Errorf("MI(x, x^2) = %v, want substantial", mi)
	}

	if mi := MutualInformation(nil, nil); mi != 0 {
		t.Errorf("MI(nil, nil) = %v", mi)
	}
}
