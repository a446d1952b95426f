// Package policy resolves the effective proctoring policy for a session.
package policy

import (
	"strings"

	"github.com/praxislabs/codelab-engine/internal/model"
)

// DefaultMaxTabSwitches applies when an assessment configuration leaves the
// tab-switch budget unset.
const DefaultMaxTabSwitches = 3

// Mode derives the session mode from the exercise category label.
func Mode(category string) model.SessionMode {
	if normalize(category) == model.CategoryAssessment {
		return model.ModeAssessment
	}
	return model.ModePractice
}

// Evaluate resolves the effective security settings for the given category.
// It is a pure function: re-evaluating with the same inputs always yields
// the same policy, since it gates whether the timer and attempt limit are
// active at all.
//
// Outside assessment mode every restrictive flag is overridden to its most
// permissive value and the tab-switch budget becomes unlimited. In
// assessment mode the raw flags pass through, with the tab-switch budget
// defaulted when absent.
func Evaluate(category string, raw model.SecuritySettings) model.SecuritySettings {
	if Mode(category) != model.ModeAssessment {
		return model.SecuritySettings{
			TimerEnabled:           false,
			TimerDurationMinutes:   0,
			CameraMicEnabled:       false,
			RestrictMinimize:       false,
			FullScreenMode:         false,
			TabSwitchAllowed:       true,
			MaxTabSwitches:         model.UnlimitedTabSwitches,
			DisableClipboard:       false,
			ScreenRecordingEnabled: false,
		}
	}

	effective := raw
	if effective.MaxTabSwitches <= 0 {
		effective.MaxTabSwitches = DefaultMaxTabSwitches
	}
	return effective
}

func normalize(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
