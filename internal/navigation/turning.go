package navigation

import (
	"fmt"
	"math"
)

// Turning controller kinds
const (
	ControllerPD        = "pd"
	ControllerRuleBased = "rule_based"
)

// TurnController computes angular velocities from a heading error.
// Positive error and positive output both mean turn right.
type TurnController interface {
	// TurningAngularVelocity is used while rotating in place
	TurningAngularVelocity(headingError, maxSpeed, dt float64) float64

	// CourseCorrection is used for drift while translating
	CourseCorrection(headingError, maxStrength, thresholdDegrees, dt float64) float64

	Reset()
	Name() string
}

// NewTurnController creates a controller by kind
func NewTurnController(kind string, params Parameters) (TurnController, error) {
	switch kind {
	case ControllerPD:
		return NewPDController(params), nil
	case ControllerRuleBased, "":
		return NewRuleBasedController(params), nil
	default:
		return nil, fmt.Errorf("unknown turn controller %q", kind)
	}
}

// PDController is a proportional-derivative controller with separate
// error memory for turning and course correction.
type PDController struct {
	params Parameters

	lastTurnError   float64
	turnPrimed      bool
	lastCorrection  float64
	correctionReady bool
}

// NewPDController creates a PD controller
func NewPDController(params Parameters) *PDController {
	return &PDController{params: params}
}

// TurningAngularVelocity returns clamp(Kp·e + Kd·de/dt, ±maxSpeed)
func (p *PDController) TurningAngularVelocity(headingError, maxSpeed, dt float64) float64 {
	var derivative float64
	if p.turnPrimed && dt > 0 {
		derivative = (headingError - p.lastTurnError) / dt
	}
	p.lastTurnError = headingError
	p.turnPrimed = true

	out := p.params.TurningKp*headingError + p.params.TurningKd*derivative
	return Clamp(out, -maxSpeed, maxSpeed)
}

// CourseCorrection returns 0 within the threshold, else a clamped PD term
func (p *PDController) CourseCorrection(headingError, maxStrength, thresholdDegrees, dt float64) float64 {
	var derivative float64
	if p.correctionReady && dt > 0 {
		derivative = (headingError - p.lastCorrection) / dt
	}
	p.lastCorrection = headingError
	p.correctionReady = true

	if Degrees(math.Abs(headingError)) <= thresholdDegrees {
		return 0
	}

	out := p.params.CorrectionKp*headingError + p.params.CorrectionKd*derivative
	return Clamp(out, -maxStrength, maxStrength)
}

// Reset clears the derivative memory
func (p *PDController) Reset() {
	p.lastTurnError = 0
	p.turnPrimed = false
	p.lastCorrection = 0
	p.correctionReady = false
}

// SetParameters replaces the gains
func (p *PDController) SetParameters(params Parameters) {
	p.params = params
}

// Name returns the controller name
func (p *PDController) Name() string {
	return "PD"
}

// RuleBasedController maps the error in degrees to a speed through fixed
// linear tiers, scaled by the rule-based gains.
type RuleBasedController struct {
	params Parameters
}

// NewRuleBasedController creates a rule-based controller
func NewRuleBasedController(params Parameters) *RuleBasedController {
	return &RuleBasedController{params: params}
}

// TurningAngularVelocity follows AngularVelocityForTurn with the gain
// scaled by TurnSpeedScale, capped at maxSpeed and floored at MinTurnSpeed
func (r *RuleBasedController) TurningAngularVelocity(headingError, maxSpeed, dt float64) float64 {
	return turnSpeed(headingError, maxSpeed*r.params.TurnSpeedScale, maxSpeed, r.params.MinTurnSpeed)
}

// CourseCorrection follows the package CourseCorrection with the gain
// scaled by CorrectionScale
func (r *RuleBasedController) CourseCorrection(headingError, maxStrength, thresholdDegrees, dt float64) float64 {
	return correctionStrength(headingError, maxStrength*r.params.CorrectionScale, maxStrength, thresholdDegrees)
}

// Reset is a no-op; the rule-based controller is memoryless
func (r *RuleBasedController) Reset() {}

// SetParameters replaces the gains
func (r *RuleBasedController) SetParameters(params Parameters) {
	r.params = params
}

// Name returns the controller name
func (r *RuleBasedController) Name() string {
	return "Rule-Based"
}
