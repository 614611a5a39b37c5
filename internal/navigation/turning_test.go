package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTurnController(t *testing.T) {
	pd, err := NewTurnController(ControllerPD, DefaultPDParameters())
	require.NoError(t, err)
	assert.Equal(t, "PD", pd.Name())

	rb, err := NewTurnController(ControllerRuleBased, DefaultRuleBasedParameters())
	require.NoError(t, err)
	assert.Equal(t, "Rule-Based", rb.Name())

	_, err = NewTurnController("fuzzy", Parameters{})
	assert.Error(t, err)
}

func TestPDController_Turning(t *testing.T) {
	pd := NewPDController(DefaultPDParameters())

	// first call has no derivative term: 2.0 * 0.5 clamped to 0.75
	assert.InDelta(t, 0.75, pd.TurningAngularVelocity(0.5, 0.75, 0.1), 1e-9)

	// 2.0*0.2 + 0.3*(0.2-0.5)/0.1
	assert.InDelta(t, -0.5, pd.TurningAngularVelocity(0.2, 0.75, 0.1), 1e-9)

	// zero dt disables the derivative
	assert.InDelta(t, 0.4, pd.TurningAngularVelocity(0.2, 0.75, 0), 1e-9)

	pd.Reset()
	assert.InDelta(t, 0.2, pd.TurningAngularVelocity(0.1, 0.75, 0.1), 1e-9)
}

func TestPDController_Correction(t *testing.T) {
	pd := NewPDController(DefaultPDParameters())

	// within threshold: no output, but the error is remembered
	assert.Equal(t, 0.0, pd.CourseCorrection(Radians(2), 1, 5, 0.1))

	// 1.0*e2 + 0.1*(e2-e1)/0.1 = 2*e2 - e1 = 18 degrees
	assert.InDelta(t, Radians(18), pd.CourseCorrection(Radians(10), 1, 5, 0.1), 1e-9)

	// clamped to maxStrength
	assert.InDelta(t, -0.2, pd.CourseCorrection(Radians(-40), 0.2, 5, 0.1), 1e-9)
}

func TestPDController_SeparateMemories(t *testing.T) {
	pd := NewPDController(DefaultPDParameters())

	pd.TurningAngularVelocity(0.3, 1, 0.1)

	// correction memory is still unprimed, so only the proportional term applies
	assert.InDelta(t, Radians(10), pd.CourseCorrection(Radians(10), 1, 5, 0.1), 1e-9)
}

func TestRuleBasedController(t *testing.T) {
	rb := NewRuleBasedController(DefaultRuleBasedParameters())

	tests := []struct {
		name string
		deg  float64
		want float64
	}{
		{"full at 90", 90, 0.75},
		{"saturates past 90", 150, 0.75},
		{"half at 45", 45, 0.375},
		{"left", -45, -0.375},
		{"floored", 1, 0.1},
		{"floored left", -1, -0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, rb.TurningAngularVelocity(Radians(tt.deg), 0.75, 0.05), 1e-9)
		})
	}

	assert.Equal(t, 0.0, rb.CourseCorrection(Radians(3), 0.2, 5, 0.05))
	assert.InDelta(t, 0.04, rb.CourseCorrection(Radians(9), 0.2, 5, 0.05), 1e-9)
	assert.InDelta(t, -0.04, rb.CourseCorrection(Radians(-9), 0.2, 5, 0.05), 1e-9)
	assert.InDelta(t, 0.2, rb.CourseCorrection(Radians(90), 0.2, 5, 0.05), 1e-9)
}

func TestRuleBasedController_Scales(t *testing.T) {
	params := DefaultRuleBasedParameters()
	params.TurnSpeedScale = 0.5
	params.CorrectionScale = 2
	params.MinTurnSpeed = 0.15
	rb := NewRuleBasedController(params)

	assert.InDelta(t, 0.1875, rb.TurningAngularVelocity(Radians(45), 0.75, 0), 1e-9)
	assert.InDelta(t, 0.15, rb.TurningAngularVelocity(Radians(10), 0.75, 0), 1e-9)
	assert.InDelta(t, 0.08, rb.CourseCorrection(Radians(9), 0.2, 5, 0), 1e-9)
}

func TestRuleBasedController_MatchesHelpersAtUnitScale(t *testing.T) {
	rb := NewRuleBasedController(DefaultRuleBasedParameters())

	for _, deg := range []float64{-170, -60, -5, 0.5, 12, 45, 89, 120} {
		e := Radians(deg)
		assert.InDelta(t, AngularVelocityForTurn(e, 0.75), rb.TurningAngularVelocity(e, 0.75, 0.05), 1e-9, "turn %v°", deg)
		assert.InDelta(t, CourseCorrection(e, 0.2, 5), rb.CourseCorrection(e, 0.2, 5, 0.05), 1e-9, "correction %v°", deg)
	}
}

func TestRuleBasedController_ScaleCappedAtMax(t *testing.T) {
	params := DefaultRuleBasedParameters()
	params.TurnSpeedScale = 2
	params.CorrectionScale = 3
	rb := NewRuleBasedController(params)

	assert.InDelta(t, 0.75, rb.TurningAngularVelocity(Radians(60), 0.75, 0), 1e-9)
	assert.InDelta(t, 0.5, rb.TurningAngularVelocity(Radians(30), 0.75, 0), 1e-9)
	assert.InDelta(t, -0.2, rb.CourseCorrection(Radians(-30), 0.2, 5, 0), 1e-9)
}

func TestParameters_Validate(t *testing.T) {
	require.NoError(t, DefaultPDParameters().Validate())
	require.NoError(t, DefaultRuleBasedParameters().Validate())

	zeroTurn := DefaultRuleBasedParameters()
	zeroTurn.TurnSpeedScale = 0
	assert.Error(t, zeroTurn.Validate())

	zeroCorrection := DefaultRuleBasedParameters()
	zeroCorrection.CorrectionScale = 0
	assert.Error(t, zeroCorrection.Validate())

	negative := DefaultPDParameters()
	negative.CorrectionKd = -0.1
	assert.Error(t, negative.Validate())

	noFloor := DefaultRuleBasedParameters()
	noFloor.MinTurnSpeed = 0
	assert.NoError(t, noFloor.Validate())
}
