package scoring

type recommendationRule struct {
	// scoreBelow: правило срабатывает при score < scoreBelow; 0: всегда
	scoreBelow int
	item       Recommendation
}

var recommendationRules = []recommendationRule{
	{
		scoreBelow: 50,
		item: Recommendation{
			Title:       "LED lighting",
			Description: "Replace every lamp with high-efficiency LED fixtures",
			Savings:     "Up to 80% on lighting consumption",
			Priority:    PriorityHigh,
		},
	},
	{
		scoreBelow: 50,
		item: Recommendation{
			Title:       "Thermal insulation",
			Description: "Improve insulation of walls, roof and window frames",
			Savings:     "Around 30% off heating costs",
			Priority:    PriorityHigh,
		},
	},
	{
		item: Recommendation{
			Title:       "Smart thermostat",
			Description: "Install smart thermostats and automated climate control",
			Savings:     "Automatic optimisation of daily consumption",
			Priority:    PriorityMedium,
		},
	},
	{
		item: Recommendation{
			Title:       "Solar panels",
			Description: "Evaluate a rooftop photovoltaic system",
			Savings:     "Up to 70% of electricity from own production",
			Priority:    PriorityLow,
		},
	},
}

// GenerateRecommendations evaluates the rule table top to bottom.
func GenerateRecommendations(score int) []Recommendation {
	out := make([]Recommendation, 0, len(recommendationRules))
	for _, rule := range recommendationRules {
		if rule.scoreBelow == 0 || score < rule.scoreBelow {
			out = append(out, rule.item)
		}
	}
	return out
}
