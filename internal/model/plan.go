package model

// Plan describes one membership plan. Prices are in minor units (kobo).
type Plan struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	PriceMinor      int64  `json:"price_minor"`
	DurationDays    int    `json:"duration_days"`
	TrainerFeeMinor int64  `json:"trainer_fee_minor"`
}

var plans = []Plan{
	{Code: "walk-in", Name: "Walk-In", PriceMinor: 50_000, DurationDays: 1, TrainerFeeMinor: 20_000},
	{Code: "weekly", Name: "Weekly", PriceMinor: 250_000, DurationDays: 7, TrainerFeeMinor: 100_000},
	{Code: "deluxe", Name: "Deluxe", PriceMinor: 800_000, DurationDays: 30, TrainerFeeMinor: 300_000},
	{Code: "bi-monthly", Name: "Bi-Monthly", PriceMinor: 1_500_000, DurationDays: 60, TrainerFeeMinor: 500_000},
}

// Plans returns the plan catalog.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// PlanByCode looks up a plan in the catalog.
func PlanByCode(code string) (Plan, bool) {
	for _, p := range plans {
		if p.Code == code {
			return p, true
		}
	}
	return Plan{}, false
}

// TotalMinor returns the plan price including the trainer add-on when selected.
func (p Plan) TotalMinor(trainerAddon bool) int64 {
	if trainerAddon {
		return p.PriceMinor + p.TrainerFeeMinor
	}
	return p.PriceMinor
}
