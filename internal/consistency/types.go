package consistency

import (
	"fmt"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
)

// #region mode

// Mode selects where the consistency value comes from.
type Mode string

const (
	// ModeSelfReported trusts the evaluator's 0-1 value (1 - stdev/2.5).
	ModeSelfReported Mode = "self_reported"
	// ModeDifference recomputes a 1-5 value from the per-question gap between passes.
	ModeDifference Mode = "difference"
)

// #endregion mode

// #region config

// Config holds the mode and its two cut-points. Scores at or above ValidCut
// are valid, at or above CautionCut caution, anything lower re-evaluate.
type Config struct {
	Mode       Mode
	ValidCut   float64
	CautionCut float64
}

// DefaultConfig returns the cut-points for a mode.
func DefaultConfig(mode Mode) Config {
	if mode == ModeDifference {
		return Config{Mode: ModeDifference, ValidCut: 4.5, CautionCut: 3.5}
	}
	return Config{Mode: ModeSelfReported, ValidCut: 0.8, CautionCut: 0.6}
}

// Validate checks the mode and that the cut-points are ordered within the mode's scale.
func (c Config) Validate() error {
	lo, hi := 0.0, 1.0
	switch c.Mode {
	case ModeSelfReported:
	case ModeDifference:
		lo, hi = 1.0, 5.0
	default:
		return &diagnosis.ConfigurationError{Key: "consistency.mode", Reason: fmt.Sprintf("unknown mode %q", c.Mode)}
	}
	if c.CautionCut < lo || c.ValidCut > hi || c.CautionCut > c.ValidCut {
		return &diagnosis.ConfigurationError{
			Key:    "consistency.valid_cut",
			Reason: fmt.Sprintf("need %g <= caution_cut (%g) <= valid_cut (%g) <= %g", lo, c.CautionCut, c.ValidCut, hi),
		}
	}
	return nil
}

// #endregion config

// #region check

// Check captures a single validation check.
type Check struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion check

// #region result

// Result is the classification of one report.
type Result struct {
	Status   diagnosis.ConsistencyStatus
	Issues   []string
	Checks   []Check
	Warnings []string
}

// #endregion result
