// Package cost projects consumed cost units onto monetary cost under the
// serverless, provisioned and autoscale pricing models.
package cost

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Model is a pricing model.
type Model string

const (
	ModelServerless  Model = "serverless"
	ModelProvisioned Model = "provisioned"
	ModelAutoscale   Model = "autoscale"
)

// Models lists every supported model.
var Models = []Model{ModelServerless, ModelProvisioned, ModelAutoscale}

// ErrUnknownModel is returned for an unsupported model name.
var ErrUnknownModel = errors.New("unknown pricing model")

// autoscaleFloor is the fraction of max throughput always billed under autoscale.
const autoscaleFloor = 0.1

// ParseModel converts a name into a Model.
func ParseModel(name string) (Model, error) {
	m := Model(strings.ToLower(strings.TrimSpace(name)))
	if !slices.Contains(Models, m) {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Params holds the pricing inputs.
type Params struct {
	PricePerMillion    float64       // serverless, per million units
	PricePer100PerHour float64       // provisioned, per 100 units/s per hour
	Throughput         float64       // provisioned units/s
	AutoscaleMax       float64       // autoscale max units/s, 0 = Throughput
	AutoscaleMultiple  float64       // autoscale rate relative to provisioned
	Utilization        float64       // autoscale average utilization in (0,1]
	Period             time.Duration // billing period
	Regions            int
}

// DefaultParams returns list-price defaults for a 400 units/s container over one month.
func DefaultParams() Params {
	return Params{
		PricePerMillion:    0.25,
		PricePer100PerHour: 0.008,
		Throughput:         400,
		AutoscaleMax:       1000,
		AutoscaleMultiple:  1.5,
		Utilization:        0.5,
		Period:             730 * time.Hour,
		Regions:            1,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	switch {
	case p.PricePerMillion < 0 || p.PricePer100PerHour < 0:
		return errors.New("prices must not be negative")
	case p.Throughput < 0 || p.AutoscaleMax < 0:
		return errors.New("throughput must not be negative")
	case p.Utilization < 0 || p.Utilization > 1:
		return fmt.Errorf("utilization must be in [0,1], got %v", p.Utilization)
	case p.Period < 0:
		return errors.New("period must not be negative")
	case p.Regions < 0:
		return errors.New("regions must not be negative")
	}
	return nil
}

func (p Params) regions() float64 {
	return float64(max(1, p.Regions))
}

func (p Params) autoscaleMax() float64 {
	if p.AutoscaleMax > 0 {
		return p.AutoscaleMax
	}
	return p.Throughput
}

func (p Params) autoscaleMultiple() float64 {
	if p.AutoscaleMultiple > 0 {
		return p.AutoscaleMultiple
	}
	return 1.5
}

// Serverless: units consumed / 1M * price.
func Serverless(units, pricePerMillion float64) float64 {
	if units <= 0 || pricePerMillion <= 0 {
		return 0
	}
	return units / 1_000_000 * pricePerMillion
}

// Provisioned: fixed throughput billed per hour and region, independent of consumption.
func Provisioned(p Params) float64 {
	return p.Throughput / 100 * p.PricePer100PerHour * p.Period.Hours() * p.regions()
}

// Autoscale: the billed throughput is the larger of the floor (10% of max) and the
// average utilization, at the autoscale rate.
func Autoscale(p Params) float64 {
	maxTP := p.autoscaleMax()
	billed := max(autoscaleFloor*maxTP, p.Utilization*maxTP)
	return billed / 100 * p.PricePer100PerHour * p.autoscaleMultiple() * p.Period.Hours() * p.regions()
}

// Estimate is the projected cost under one model.
type Estimate struct {
	Model     Model   `json:"model"`
	Cost      float64 `json:"cost"`
	Breakdown string  `json:"breakdown"`
}

// EstimateCost projects units onto model.
func EstimateCost(model Model, units float64, p Params) (Estimate, error) {
	if err := p.Validate(); err != nil {
		return Estimate{}, err
	}

	switch model {
	case ModelServerless:
		c := Serverless(units, p.PricePerMillion)
		return Estimate{
			Model: model,
			Cost:  c,
			Breakdown: fmt.Sprintf("%.0f units / 1M x $%.4f = $%.4f",
				units, p.PricePerMillion, c),
		}, nil

	case ModelProvisioned:
		c := Provisioned(p)
		return Estimate{
			Model: model,
			Cost:  c,
			Breakdown: fmt.Sprintf("%.0f units/s / 100 x $%.4f/h x %.1fh x %d region(s) = $%.4f",
				p.Throughput, p.PricePer100PerHour, p.Period.Hours(), int(p.regions()), c),
		}, nil

	case ModelAutoscale:
		c := Autoscale(p)
		maxTP := p.autoscaleMax()
		billed := max(autoscaleFloor*maxTP, p.Utilization*maxTP)
		return Estimate{
			Model: model,
			Cost:  c,
			Breakdown: fmt.Sprintf("%.0f of %.0f units/s billed / 100 x $%.4f/h x %.1f x %.1fh x %d region(s) = $%.4f",
				billed, maxTP, p.PricePer100PerHour, p.autoscaleMultiple(), p.Period.Hours(), int(p.regions()), c),
		}, nil

	default:
		return Estimate{}, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
}

// Comparison ranks every model for the same workload, cheapest first.
type Comparison struct {
	Estimates []Estimate `json:"estimates"`
	Cheapest  Model      `json:"cheapest"`
	Rationale string     `json:"rationale"`
}

// Compare estimates units under every model.
func Compare(units float64, p Params) (Comparison, error) {
	estimates := make([]Estimate, 0, len(Models))
	for _, m := range Models {
		e, err := EstimateCost(m, units, p)
		if err != nil {
			return Comparison{}, err
		}
		estimates = append(estimates, e)
	}

	// Stable so ties keep the order of Models.
	slices.SortStableFunc(estimates, func(a, b Estimate) int {
		return cmp.Compare(a.Cost, b.Cost)
	})

	best, next := estimates[0], estimates[1]
	rationale := fmt.Sprintf("%s is cheapest at $%.4f", best.Model, best.Cost)
	if next.Cost > best.Cost {
		rationale += fmt.Sprintf(", saving $%.4f over %s", next.Cost-best.Cost, next.Model)
	}
	rationale += "; " + modelFit[best.Model]

	return Comparison{
		Estimates: estimates,
		Cheapest:  best.Model,
		Rationale: rationale,
	}, nil
}

var modelFit = map[Model]string{
	ModelServerless:  "pay-per-request fits sporadic or low-volume workloads",
	ModelProvisioned: "steady, predictable traffic keeps fixed throughput fully used",
	ModelAutoscale:   "variable traffic benefits from scaling down between peaks",
}
