package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// HeatingType: тип отопления здания
type HeatingType string

const (
	HeatingGas      HeatingType = "gas"
	HeatingElectric HeatingType = "electric"
	HeatingHeatPump HeatingType = "heat-pump"
	HeatingOther    HeatingType = "other"
)

// BuildingType: назначение здания
type BuildingType string

const (
	BuildingResidential BuildingType = "residential"
	BuildingOffice      BuildingType = "office"
	BuildingCommercial  BuildingType = "commercial"
	BuildingIndustrial  BuildingType = "industrial"
)

// EnergyProfile is the raw calculator input.
type EnergyProfile struct {
	ConsumptionKWh float64      `json:"consumption_kwh"`
	Bill           float64      `json:"bill"`
	AreaM2         float64      `json:"area_m2"`
	HeatingType    HeatingType  `json:"heating_type"`
	BuildingType   BuildingType `json:"building_type"`
	Occupants      *int         `json:"occupants,omitempty"`
}

// Normalize fills enum defaults and lowercases enum values.
func (p EnergyProfile) Normalize() EnergyProfile {
	p.HeatingType = HeatingType(strings.ToLower(strings.TrimSpace(string(p.HeatingType))))
	if p.HeatingType == "" {
		p.HeatingType = HeatingOther
	}
	p.BuildingType = BuildingType(strings.ToLower(strings.TrimSpace(string(p.BuildingType))))
	if p.BuildingType == "" {
		p.BuildingType = BuildingResidential
	}
	return p
}

// Validate checks numeric ranges and enum membership.
func (p EnergyProfile) Validate() error {
	if !positive(p.ConsumptionKWh) {
		return fmt.Errorf("%w: consumption_kwh must be > 0", ErrInvalidArgument)
	}
	if !positive(p.Bill) {
		return fmt.Errorf("%w: bill must be > 0", ErrInvalidArgument)
	}
	if !positive(p.AreaM2) {
		return fmt.Errorf("%w: area_m2 must be > 0", ErrInvalidArgument)
	}
	switch p.HeatingType {
	case HeatingGas, HeatingElectric, HeatingHeatPump, HeatingOther:
	default:
		return fmt.Errorf("%w: unknown heating_type %q", ErrInvalidArgument, p.HeatingType)
	}
	switch p.BuildingType {
	case BuildingResidential, BuildingOffice, BuildingCommercial, BuildingIndustrial:
	default:
		return fmt.Errorf("%w: unknown building_type %q", ErrInvalidArgument, p.BuildingType)
	}
	if p.Occupants != nil && *p.Occupants < 0 {
		return fmt.Errorf("%w: occupants must be >= 0", ErrInvalidArgument)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Tier: уровень энергоэффективности (5 упорядоченных значений)
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierAverage   Tier = "average"
	TierPoor      Tier = "poor"
	TierCritical  Tier = "critical"
)

// Rank returns 1 for the best tier and 5 for the worst, 0 for unknown values.
func (t Tier) Rank() int {
	switch t {
	case TierExcellent:
		return 1
	case TierGood:
		return 2
	case TierAverage:
		return 3
	case TierPoor:
		return 4
	case TierCritical:
		return 5
	default:
		return 0
	}
}

// EfficiencyRating is derived from consumption per m².
type EfficiencyRating struct {
	Tier   Tier    `json:"tier"`
	Score  int     `json:"score"`
	Color  string  `json:"color"`
	Factor float64 `json:"factor"`
}

// SavingsProjection holds every money/CO2 figure derived from a rating.
// ROIYears is nil when annual savings are zero.
type SavingsProjection struct {
	MonthlySavings     float64  `json:"monthly_savings"`
	AnnualSavings      float64  `json:"annual_savings"`
	Percentage         int      `json:"percentage"`
	Investment         float64  `json:"investment"`
	ROIYears           *float64 `json:"roi_years"`
	CO2ReductionTonnes float64  `json:"co2_reduction_tonnes"`
}

// ROIDisplay renders ROI for humans, "N/A" when undefined.
func (p SavingsProjection) ROIDisplay() string {
	if p.ROIYears == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *p.ROIYears)
}

// Priority: приоритет рекомендации
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Recommendation is one ranked tip.
type Recommendation struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Savings     string   `json:"savings"`
	Priority    Priority `json:"priority"`
}

// Assessment bundles everything Evaluate derives from a profile.
type Assessment struct {
	Rating          EfficiencyRating  `json:"rating"`
	Projection      SavingsProjection `json:"projection"`
	Recommendations []Recommendation  `json:"recommendations"`
}

// Errors
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUndefinedROI    = errors.New("roi undefined: annual savings is zero")
)
