package cost

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestServerless(t *testing.T) {
	tests := []struct {
		units float64
		price float64
		want  float64
	}{
		{1_000_000, 0.008, 0.008},
		{2_500_000, 0.25, 0.625},
		{0, 0.25, 0},
		{-5, 0.25, 0},
		{1_000_000, 0, 0},
	}

	for _, tt := range tests {
		if got := Serverless(tt.units, tt.price); !almostEqual(got, tt.want) {
			t.Errorf("Serverless(%v, %v) = %v, want %v", tt.units, tt.price, got, tt.want)
		}
	}

	if got := Serverless(1_000_000, 0.008); got != 0.008 {
		t.Errorf("expected exactly 0.008, got %v", got)
	}
}

func TestProvisioned(t *testing.T) {
	p := DefaultParams()
	p.Throughput = 400
	p.PricePer100PerHour = 0.008
	p.Period = 100 * time.Hour
	p.Regions = 2

	// 4 x 0.008 x 100 x 2
	if got := Provisioned(p); !almostEqual(got, 6.4) {
		t.Errorf("expected 6.4, got %v", got)
	}

	p.Regions = 0
	if got := Provisioned(p); !almostEqual(got, 3.2) {
		t.Errorf("expected single region fallback 3.2, got %v", got)
	}
}

func TestAutoscale(t *testing.T) {
	p := DefaultParams()
	p.AutoscaleMax = 1000
	p.PricePer100PerHour = 0.008
	p.AutoscaleMultiple = 1.5
	p.Period = 10 * time.Hour
	p.Regions = 1

	tests := []struct {
		name        string
		utilization float64
		want        float64
	}{
		// 500 / 100 x 0.008 x 1.5 x 10
		{"half utilized", 0.5, 0.6},
		// floor: 100 / 100 x 0.008 x 1.5 x 10
		{"idle bills the floor", 0.01, 0.12},
		{"fully utilized", 1, 1.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.Utilization = tt.utilization
			if got := Autoscale(p); !almostEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEstimateCost(t *testing.T) {
	p := DefaultParams()

	for _, m := range Models {
		e, err := EstimateCost(m, 5_000_000, p)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", m, err)
		}
		if e.Model != m {
			t.Errorf("expected model %s, got %s", m, e.Model)
		}
		if e.Cost <= 0 {
			t.Errorf("%s: expected positive cost, got %v", m, e.Cost)
		}
		if !strings.Contains(e.Breakdown, "$") {
			t.Errorf("%s: expected breakdown with amounts, got %q", m, e.Breakdown)
		}
	}

	if _, err := EstimateCost("spot", 1, p); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}

	p.Utilization = 2
	if _, err := EstimateCost(ModelAutoscale, 1, p); err == nil {
		t.Error("expected validation error for utilization above 1")
	}
}

func TestCompare(t *testing.T) {
	p := DefaultParams()
	p.Period = 730 * time.Hour

	tests := []struct {
		name  string
		units float64
		want  Model
	}{
		// 1M units: $0.25 serverless vs ~$23 provisioned
		{"light workload", 1_000_000, ModelServerless},
		// 1B units: $250 serverless vs ~$23 provisioned, ~$44 autoscale
		{"heavy workload", 1_000_000_000, ModelProvisioned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Compare(tt.units, p)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.Cheapest != tt.want {
				t.Errorf("expected %s cheapest, got %s (%+v)", tt.want, c.Cheapest, c.Estimates)
			}
			if len(c.Estimates) != len(Models) {
				t.Fatalf("expected %d estimates, got %d", len(Models), len(c.Estimates))
			}
			for i := 1; i < len(c.Estimates); i++ {
				if c.Estimates[i].Cost < c.Estimates[i-1].Cost {
					t.Errorf("estimates not sorted: %+v", c.Estimates)
				}
			}
			if !strings.HasPrefix(c.Rationale, string(tt.want)) {
				t.Errorf("unexpected rationale: %q", c.Rationale)
			}
		})
	}
}

func TestParseModel(t *testing.T) {
	if m, err := ParseModel(" Autoscale "); err != nil || m != ModelAutoscale {
		t.Errorf("expected autoscale, got %s, %v", m, err)
	}
	if _, err := ParseModel("reserved"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
}
