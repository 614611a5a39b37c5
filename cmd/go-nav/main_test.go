package main

import (
	"testing"

	"github.com/teslashibe/go-nav/internal/config"
	"github.com/teslashibe/go-nav/internal/navigation"
)

func TestBuildStrategies(t *testing.T) {
	cfg := config.Default().Navigation
	cfg.Strategies = []string{config.StrategyCombined, config.StrategyWaypoint, config.StrategyObstacle}
	cfg.ObstacleThreshold = 0.5
	cfg.HeadingWeight = 2

	strategies, err := buildStrategies(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(strategies) != 3 {
		t.Fatalf("expected 3 strategies, got %d", len(strategies))
	}

	combined, ok := strategies[0].(*navigation.Combined)
	if !ok {
		t.Fatalf("expected Combined first, got %T", strategies[0])
	}
	if combined.ObstacleAvoidance().HeadingWeight != 2 {
		t.Errorf("expected heading weight 2, got %f", combined.ObstacleAvoidance().HeadingWeight)
	}

	wf, ok := strategies[1].(*navigation.WaypointFollowing)
	if !ok {
		t.Fatalf("expected WaypointFollowing second, got %T", strategies[1])
	}
	if wf.Turner() == combined.WaypointFollowing().Turner() {
		t.Error("strategies should not share a turning controller")
	}
}

func TestBuildStrategies_Unknown(t *testing.T) {
	cfg := config.Default().Navigation
	cfg.Strategies = []string{"wander"}

	if _, err := buildStrategies(cfg, nil); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestTransportConfig(t *testing.T) {
	vc := config.Default().Vehicle
	vc.USBVendorID = 0x1234
	vc.StopBits = 2

	tc := transportConfig(vc)
	if tc.Kind != "serial" || tc.Port != "/dev/ttyACM0" {
		t.Errorf("unexpected transport %q at %q", tc.Kind, tc.Port)
	}
	if tc.USB.VendorID != 0x1234 {
		t.Errorf("expected vendor 0x1234, got %#x", tc.USB.VendorID)
	}
	if tc.Serial.StopBits != 2 {
		t.Errorf("expected 2 stop bits, got %d", tc.Serial.StopBits)
	}
}
