package navigation

import (
	"fmt"
	"math"
)

// Parameters bundles the gains of both turning controllers.
// PD gains are used by PDController, the scale factors by RuleBasedController.
type Parameters struct {
	TurningKp    float64 `json:"turning_kp"`
	TurningKd    float64 `json:"turning_kd"`
	CorrectionKp float64 `json:"correction_kp"`
	CorrectionKd float64 `json:"correction_kd"`

	MinTurnSpeed    float64 `json:"min_turn_speed"`
	TurnSpeedScale  float64 `json:"turn_speed_scale"`
	CorrectionScale float64 `json:"correction_scale"`
}

// DefaultPDParameters returns gains tuned for the PD controller
func DefaultPDParameters() Parameters {
	return Parameters{
		TurningKp:       2.0,
		TurningKd:       0.3,
		CorrectionKp:    1.0,
		CorrectionKd:    0.1,
		MinTurnSpeed:    0.1,
		TurnSpeedScale:  1.0,
		CorrectionScale: 1.0,
	}
}

// DefaultRuleBasedParameters returns gains tuned for the rule-based controller
func DefaultRuleBasedParameters() Parameters {
	return Parameters{
		TurningKp:       1.0,
		TurningKd:       0.1,
		CorrectionKp:    0.5,
		CorrectionKd:    0.05,
		MinTurnSpeed:    0.1,
		TurnSpeedScale:  1.0,
		CorrectionScale: 1.0,
	}
}

// Validate rejects negative gains and scale factors that would silence
// the rule-based controller
func (p Parameters) Validate() error {
	gains := []struct {
		name  string
		value float64
	}{
		{"turning_kp", p.TurningKp},
		{"turning_kd", p.TurningKd},
		{"correction_kp", p.CorrectionKp},
		{"correction_kd", p.CorrectionKd},
		{"min_turn_speed", p.MinTurnSpeed},
	}
	for _, g := range gains {
		if g.value < 0 || math.IsNaN(g.value) {
			return fmt.Errorf("%s must not be negative, got %f", g.name, g.value)
		}
	}
	if !(p.TurnSpeedScale > 0) {
		return fmt.Errorf("turn_speed_scale must be positive, got %f", p.TurnSpeedScale)
	}
	if !(p.CorrectionScale > 0) {
		return fmt.Errorf("correction_scale must be positive, got %f", p.CorrectionScale)
	}
	return nil
}

func (p Parameters) String() string {
	return fmt.Sprintf("Parameters{turningKp=%.2f, turningKd=%.2f, correctionKp=%.2f, correctionKd=%.2f, minTurnSpeed=%.2f, turnSpeedScale=%.2f, correctionScale=%.2f}",
		p.TurningKp, p.TurningKd, p.CorrectionKp, p.CorrectionKd, p.MinTurnSpeed, p.TurnSpeedScale, p.CorrectionScale)
}
