package scoring

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

const eps = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestClassifyEfficiencyBoundaries(t *testing.T) {
	tests := []struct {
		name        string
		consumption float64
		area        float64
		wantTier    Tier
		wantScore   int
		wantFactor  float64
	}{
		{"ratio 3.5", 350, 100, TierExcellent, 90, 0.30},
		{"ratio just below 5", 499.99, 100, TierExcellent, 90, 0.30},
		{"ratio 5 goes to good", 500, 100, TierGood, 75, 0.50},
		{"ratio 10 goes to average", 1000, 100, TierAverage, 60, 0.70},
		{"ratio 15 goes to poor", 1500, 100, TierPoor, 40, 0.90},
		{"ratio 20 goes to critical", 2000, 100, TierCritical, 25, 1.00},
		{"ratio 25", 2000, 80, TierCritical, 25, 1.00},
		{"tiny ratio", 1, 10000, TierExcellent, 90, 0.30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifyEfficiency(tt.consumption, tt.area)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Tier != tt.wantTier || got.Score != tt.wantScore || got.Factor != tt.wantFactor {
				t.Fatalf("got %+v, want tier=%s score=%d factor=%v", got, tt.wantTier, tt.wantScore, tt.wantFactor)
			}
		})
	}
}

func TestClassifyEfficiencyIsDeterministic(t *testing.T) {
	first, _ := ClassifyEfficiency(1234, 98.7)
	for i := 0; i < 100; i++ {
		again, _ := ClassifyEfficiency(1234, 98.7)
		if again != first {
			t.Fatalf("iteration %d: got %+v, want %+v", i, again, first)
		}
	}
}

func TestClassifyEfficiencyRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		consumption, area float64
	}{
		{0, 100},
		{-1, 100},
		{100, 0},
		{100, -5},
		{math.NaN(), 10},
		{100, math.Inf(1)},
	}
	for _, c := range cases {
		if _, err := ClassifyEfficiency(c.consumption, c.area); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ClassifyEfficiency(%v, %v): expected ErrInvalidArgument, got %v", c.consumption, c.area, err)
		}
	}
}

func TestTiersPartitionRatioDomain(t *testing.T) {
	bands := Tiers()
	if len(bands) != 5 {
		t.Fatalf("expected 5 tiers, got %d", len(bands))
	}
	for i, b := range bands {
		if b.Rating.Tier.Rank() != i+1 {
			t.Errorf("tier %s has rank %d, want %d", b.Rating.Tier, b.Rating.Tier.Rank(), i+1)
		}
		if i > 0 && b.Below != 0 && b.Below <= bands[i-1].Below {
			t.Errorf("bounds are not ascending at %d", i)
		}
	}
	if bands[len(bands)-1].Below != 0 {
		t.Fatal("last tier must be open-ended")
	}
}

func TestProjectSavingsAnnualAndPercentage(t *testing.T) {
	// 45*0.7 во float = 31.499999999999996, поэтому average даёт 31
	wantPercent := map[float64]int{0.3: 14, 0.5: 23, 0.7: 31, 0.9: 41, 1.0: 45}
	for factor, want := range wantPercent {
		p, err := ProjectSavings(200, factor)
		if err != nil {
			t.Fatalf("factor %v: unexpected error: %v", factor, err)
		}
		if !almostEqual(p.AnnualSavings, p.MonthlySavings*12) {
			t.Errorf("factor %v: annual=%v monthly*12=%v", factor, p.AnnualSavings, p.MonthlySavings*12)
		}
		if p.Percentage != want {
			t.Errorf("factor %v: percentage=%d want %d", factor, p.Percentage, want)
		}
	}
}

func TestProjectSavingsRejectsInvalidInput(t *testing.T) {
	if _, err := ProjectSavings(0, 0.5); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for zero bill, got %v", err)
	}
	if _, err := ProjectSavings(100, 1.5); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for factor > 1, got %v", err)
	}
}

func TestEvaluateConcreteScenarios(t *testing.T) {
	tests := []struct {
		name        string
		profile     EnergyProfile
		wantTier    Tier
		wantMonthly float64
		wantAnnual  float64
		wantPercent int
		wantRecs    int
	}{
		{
			name:        "excellent home",
			profile:     EnergyProfile{ConsumptionKWh: 350, AreaM2: 100, Bill: 150},
			wantTier:    TierExcellent,
			wantMonthly: 20.25,
			wantAnnual:  243,
			wantPercent: 14,
			wantRecs:    2,
		},
		{
			name:        "critical office",
			profile:     EnergyProfile{ConsumptionKWh: 2000, AreaM2: 80, Bill: 300, BuildingType: BuildingOffice},
			wantTier:    TierCritical,
			wantMonthly: 135,
			wantAnnual:  1620,
			wantPercent: 45,
			wantRecs:    4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Evaluate(tt.profile)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Rating.Tier != tt.wantTier {
				t.Fatalf("tier=%s want %s", a.Rating.Tier, tt.wantTier)
			}
			if !almostEqual(a.Projection.MonthlySavings, tt.wantMonthly) {
				t.Errorf("monthly=%v want %v", a.Projection.MonthlySavings, tt.wantMonthly)
			}
			if !almostEqual(a.Projection.AnnualSavings, tt.wantAnnual) {
				t.Errorf("annual=%v want %v", a.Projection.AnnualSavings, tt.wantAnnual)
			}
			if a.Projection.Percentage != tt.wantPercent {
				t.Errorf("percentage=%d want %d", a.Projection.Percentage, tt.wantPercent)
			}
			if len(a.Recommendations) != tt.wantRecs {
				t.Errorf("recommendations=%d want %d", len(a.Recommendations), tt.wantRecs)
			}
			if a.Projection.ROIYears == nil {
				t.Fatal("expected ROI to be defined")
			}
			wantROI := a.Projection.Investment / a.Projection.AnnualSavings
			if !almostEqual(*a.Projection.ROIYears, wantROI) {
				t.Errorf("roi=%v want %v", *a.Projection.ROIYears, wantROI)
			}
		})
	}
}

func TestEvaluateDefaultsEnums(t *testing.T) {
	a, err := Evaluate(EnergyProfile{ConsumptionKWh: 100, AreaM2: 50, Bill: 40})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Rating.Tier != TierExcellent {
		t.Fatalf("tier=%s", a.Rating.Tier)
	}

	_, err = Evaluate(EnergyProfile{ConsumptionKWh: 100, AreaM2: 50, Bill: 40, HeatingType: "coal"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for unknown heating type, got %v", err)
	}

	neg := -1
	_, err = Evaluate(EnergyProfile{ConsumptionKWh: 100, AreaM2: 50, Bill: 40, Occupants: &neg})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for negative occupants, got %v", err)
	}
}

func TestEstimateROIUndefined(t *testing.T) {
	_, err := EstimateROI(3500, 0)
	if !errors.Is(err, ErrUndefinedROI) {
		t.Fatalf("expected ErrUndefinedROI, got %v", err)
	}

	p := SavingsProjection{}
	if p.ROIDisplay() != "N/A" {
		t.Fatalf("expected N/A, got %q", p.ROIDisplay())
	}
}

func TestEstimateInvestmentAndCO2(t *testing.T) {
	if got := EstimateInvestment(100); !almostEqual(got, 3500) {
		t.Fatalf("investment=%v want 3500", got)
	}
	// 350 * 12 * 0.3 * 0.5 / 1000 = 0.63
	if got := EstimateCO2Savings(350); !almostEqual(got, 0.63) {
		t.Fatalf("co2=%v want 0.63", got)
	}
}

func TestGenerateRecommendationsOrder(t *testing.T) {
	low := GenerateRecommendations(40)
	wantPriorities := []Priority{PriorityHigh, PriorityHigh, PriorityMedium, PriorityLow}
	if len(low) != len(wantPriorities) {
		t.Fatalf("got %d recommendations, want %d", len(low), len(wantPriorities))
	}
	for i, p := range wantPriorities {
		if low[i].Priority != p {
			t.Errorf("item %d priority=%s want %s", i, low[i].Priority, p)
		}
	}

	high := GenerateRecommendations(50)
	if len(high) != 2 || high[0].Priority != PriorityMedium || high[1].Priority != PriorityLow {
		t.Fatalf("unexpected recommendations for score 50: %+v", high)
	}
}

func TestAssessmentJSONKeepsNumbers(t *testing.T) {
	a, err := Evaluate(EnergyProfile{ConsumptionKWh: 350, AreaM2: 100, Bill: 150})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	projection := generic["projection"].(map[string]any)
	if _, ok := projection["annual_savings"].(float64); !ok {
		t.Fatalf("annual_savings must be a JSON number, got %T", projection["annual_savings"])
	}
}
