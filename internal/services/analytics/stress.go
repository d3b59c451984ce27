package analytics

import (
	"fmt"

	"CreditPulse/internal/domain/models"
)

// ApplyScenario returns a shocked copy of the inputs.
func ApplyScenario(in models.MarketInputs, sc models.Scenario) (models.MarketInputs, error) {
	if sc.Name == "" {
		return in, fmt.Errorf("%w: scenario name is required", models.ErrInvalidInput)
	}
	out := in
	for _, sh := range sc.Shocks {
		v, err := out.Get(sh.Input)
		if err != nil {
			return in, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		switch sh.Kind {
		case models.ShockMultiplicative:
			v *= sh.Value
		case models.ShockAdditive:
			v += sh.Value
		default:
			return in, fmt.Errorf("%w: scenario %s: unknown shock kind %q", models.ErrInvalidInput, sc.Name, sh.Kind)
		}
		if out, err = out.With(sh.Input, v); err != nil {
			return in, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
	}
	return out, nil
}

// Stress re-solves the model under a scenario and reports the shocked
// metrics against a baseline computed in the same call.
func Stress(in models.MarketInputs, sc models.Scenario, cfg models.AnalyticsConfig) (models.StressResult, error) {
	if err := cfg.Validate(); err != nil {
		return models.StressResult{}, err
	}
	if err := in.Validate(); err != nil {
		return models.StressResult{}, err
	}
	shocked, err := ApplyScenario(in, sc)
	if err != nil {
		return models.StressResult{}, err
	}
	if err := shocked.Validate(); err != nil {
		return models.StressResult{}, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	base, err := evaluate(in, cfg)
	if err != nil {
		return models.StressResult{}, err
	}
	hit, err := evaluate(shocked, cfg)
	if err != nil {
		return models.StressResult{}, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	out := models.StressResult{
		Ticker:        in.Ticker,
		Date:          in.Date,
		ScenarioName:  sc.Name,
		ShockedInputs: shocked,
		Converged:     base.ok && hit.ok,
	}
	if base.ok {
		out.BaselineDD = base.metrics.DistanceToDefault
		out.BaselinePD = base.metrics.ProbabilityOfDefault
	}
	if hit.ok {
		out.ShockedDD = hit.metrics.DistanceToDefault
		out.ShockedPD = hit.metrics.ProbabilityOfDefault
	}
	if out.Converged {
		out.DeltaDD = out.ShockedDD - out.BaselineDD
		out.DeltaPD = out.ShockedPD - out.BaselinePD
	}
	return out, nil
}
