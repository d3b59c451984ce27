package analytics

import (
	"sort"

	"CreditPulse/internal/domain/models"
)

// marketShock builds a scenario from the four shocks used by the historical
// presets: relative equity move, volatility multiplier, relative debt move and
// additive rate move.
func marketShock(name, desc string, equity, vol, debt, rate float64) models.Scenario {
	sc := models.Scenario{Name: name, Description: desc}
	if equity != 0 {
		sc.Shocks = append(sc.Shocks, models.Shock{Input: models.InputEquityValue, Kind: models.ShockMultiplicative, Value: 1 + equity})
	}
	if vol != 1 {
		sc.Shocks = append(sc.Shocks, models.Shock{Input: models.InputEquityVolatility, Kind: models.ShockMultiplicative, Value: vol})
	}
	if debt != 0 {
		sc.Shocks = append(sc.Shocks, models.Shock{Input: models.InputDebtFaceValue, Kind: models.ShockMultiplicative, Value: 1 + debt})
	}
	if rate != 0 {
		sc.Shocks = append(sc.Shocks, models.Shock{Input: models.InputRiskFreeRate, Kind: models.ShockAdditive, Value: rate})
	}
	return sc
}

var namedScenarios = map[string]models.Scenario{
	"GFC_2008":         marketShock("GFC_2008", "2008 global financial crisis", -0.45, 2.5, 0, -0.04),
	"COVID_2020":       marketShock("COVID_2020", "March 2020 pandemic crash", -0.30, 2.0, 0.15, -0.015),
	"RATES_2022":       marketShock("RATES_2022", "2022 rate-hike cycle", -0.15, 1.3, 0.05, 0.04),
	"MILD_RECESSION":   marketShock("MILD_RECESSION", "mild recession", -0.20, 1.5, 0.10, 0),
	"SEVERE_RECESSION": marketShock("SEVERE_RECESSION", "severe recession", -0.40, 2.0, 0.15, -0.02),
	"SEVERE_LIQUIDITY": marketShock("SEVERE_LIQUIDITY", "severe liquidity squeeze", -0.50, 3.0, 0, 0),
}

// NamedScenario looks up a preset scenario.
func NamedScenario(name string) (models.Scenario, bool) {
	sc, ok := namedScenarios[name]
	if !ok {
		return models.Scenario{}, false
	}
	sc.Shocks = append([]models.Shock(nil), sc.Shocks...)
	return sc, true
}

// ScenarioNames lists the presets in lexical order.
func ScenarioNames() []string {
	names := make([]string, 0, len(namedScenarios))
	for name := range namedScenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
