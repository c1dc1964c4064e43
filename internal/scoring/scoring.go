package scoring

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Процент считается во float: 45*0.7 = 31.4999... -> 31, как в уже сохранённых отчётах
const maxPercentage = 45.0

// Коэффициенты расчёта. CO2-формула зафиксирована ради совместимости со старыми отчётами.
var (
	basePotentialRate = decimal.RequireFromString("0.45")
	monthsPerYear     = decimal.NewFromInt(12)
	investmentPerM2   = decimal.NewFromInt(35)
	co2ReductionShare = decimal.RequireFromString("0.3")
	co2KgPerKWh       = decimal.RequireFromString("0.5")
	kgPerTonne        = decimal.NewFromInt(1000)
)

// TierBand pairs a rating with its exclusive upper ratio bound (0 = open-ended).
type TierBand struct {
	Below  float64
	Rating EfficiencyRating
}

// Границы проверяются по возрастанию, строгое "<".
var tierBands = []TierBand{
	{Below: 5, Rating: EfficiencyRating{Tier: TierExcellent, Score: 90, Color: "#059669", Factor: 0.30}},
	{Below: 10, Rating: EfficiencyRating{Tier: TierGood, Score: 75, Color: "#2563eb", Factor: 0.50}},
	{Below: 15, Rating: EfficiencyRating{Tier: TierAverage, Score: 60, Color: "#eab308", Factor: 0.70}},
	{Below: 20, Rating: EfficiencyRating{Tier: TierPoor, Score: 40, Color: "#f97316", Factor: 0.90}},
	{Below: 0, Rating: EfficiencyRating{Tier: TierCritical, Score: 25, Color: "#dc2626", Factor: 1.00}},
}

// Tiers returns a copy of the rating table ordered from best to worst.
func Tiers() []TierBand {
	out := make([]TierBand, len(tierBands))
	copy(out, tierBands)
	return out
}

// ClassifyEfficiency maps consumption per m² to a rating.
func ClassifyEfficiency(consumption, area float64) (EfficiencyRating, error) {
	if !positive(consumption) {
		return EfficiencyRating{}, fmt.Errorf("%w: consumption must be > 0", ErrInvalidArgument)
	}
	if !positive(area) {
		return EfficiencyRating{}, fmt.Errorf("%w: area must be > 0", ErrInvalidArgument)
	}

	ratio := consumption / area
	for _, b := range tierBands {
		if b.Below == 0 || ratio < b.Below {
			return b.Rating, nil
		}
	}
	return tierBands[len(tierBands)-1].Rating, nil
}

// ProjectSavings computes monthly/annual savings and the percentage for a bill.
// Investment, ROI and CO2 are left zero; see Evaluate.
func ProjectSavings(bill, factor float64) (SavingsProjection, error) {
	if !positive(bill) {
		return SavingsProjection{}, fmt.Errorf("%w: bill must be > 0", ErrInvalidArgument)
	}
	if factor < 0 || factor > 1 {
		return SavingsProjection{}, fmt.Errorf("%w: factor must be within [0,1]", ErrInvalidArgument)
	}

	f := decimal.NewFromFloat(factor)
	monthly := decimal.NewFromFloat(bill).Mul(basePotentialRate).Mul(f)
	annual := monthly.Mul(monthsPerYear)

	return SavingsProjection{
		MonthlySavings: monthly.InexactFloat64(),
		AnnualSavings:  annual.InexactFloat64(),
		Percentage:     int(math.Round(maxPercentage * factor)),
	}, nil
}

// EstimateInvestment returns the one-time retrofit cost for a floor area.
func EstimateInvestment(area float64) float64 {
	return decimal.NewFromFloat(area).Mul(investmentPerM2).InexactFloat64()
}

// EstimateROI returns payback years, or ErrUndefinedROI when nothing is saved.
func EstimateROI(investment, annualSavings float64) (float64, error) {
	if annualSavings == 0 {
		return 0, ErrUndefinedROI
	}
	return investment / annualSavings, nil
}

// EstimateCO2Savings returns tonnes of CO2 avoided per year.
func EstimateCO2Savings(consumption float64) float64 {
	return decimal.NewFromFloat(consumption).
		Mul(monthsPerYear).
		Mul(co2ReductionShare).
		Mul(co2KgPerKWh).
		Div(kgPerTonne).
		InexactFloat64()
}

// Evaluate runs the whole engine over a normalized, validated profile.
func Evaluate(profile EnergyProfile) (Assessment, error) {
	profile = profile.Normalize()
	if err := profile.Validate(); err != nil {
		return Assessment{}, err
	}

	rating, err := ClassifyEfficiency(profile.ConsumptionKWh, profile.AreaM2)
	if err != nil {
		return Assessment{}, err
	}

	projection, err := ProjectSavings(profile.Bill, rating.Factor)
	if err != nil {
		return Assessment{}, err
	}
	projection.Investment = EstimateInvestment(profile.AreaM2)
	projection.CO2ReductionTonnes = EstimateCO2Savings(profile.ConsumptionKWh)

	roi, err := EstimateROI(projection.Investment, projection.AnnualSavings)
	if err == nil {
		projection.ROIYears = &roi
	}

	return Assessment{
		Rating:          rating,
		Projection:      projection,
		Recommendations: GenerateRecommendations(rating.Score),
	}, nil
}
