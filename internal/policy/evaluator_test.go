package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxislabs/codelab-engine/internal/model"
)

func restrictiveSettings() model.SecuritySettings {
	return model.SecuritySettings{
		TimerEnabled:           true,
		TimerDurationMinutes:   90,
		CameraMicEnabled:       true,
		RestrictMinimize:       true,
		FullScreenMode:         true,
		TabSwitchAllowed:       false,
		MaxTabSwitches:         1,
		DisableClipboard:       true,
		ScreenRecordingEnabled: true,
	}
}

func TestMode(t *testing.T) {
	assert.Equal(t, model.ModeAssessment, Mode("assessment"))
	assert.Equal(t, model.ModeAssessment, Mode("  Assessment "))
	assert.Equal(t, model.ModeAssessment, Mode("ASSESSMENT"))
	assert.Equal(t, model.ModePractice, Mode("practice"))
	assert.Equal(t, model.ModePractice, Mode("tutorial"))
	assert.Equal(t, model.ModePractice, Mode(""))
}

func TestEvaluatePracticeForcesPermissive(t *testing.T) {
	// Regardless of how restrictive the raw configuration is, a
	// non-assessment category must resolve to a fully permissive policy.
	categories := []string{"practice", "tutorial", "homework", "", "  ", "assessments"}

	for _, category := range categories {
		effective := Evaluate(category, restrictiveSettings())

		assert.False(t, effective.TimerEnabled, "category %q", category)
		assert.False(t, effective.CameraMicEnabled, "category %q", category)
		assert.False(t, effective.RestrictMinimize, "category %q", category)
		assert.False(t, effective.FullScreenMode, "category %q", category)
		assert.True(t, effective.TabSwitchAllowed, "category %q", category)
		assert.Equal(t, model.UnlimitedTabSwitches, effective.MaxTabSwitches, "category %q", category)
		assert.False(t, effective.DisableClipboard, "category %q", category)
		assert.False(t, effective.ScreenRecordingEnabled, "category %q", category)
	}
}

func TestEvaluatePracticeExhaustiveFlagCombinations(t *testing.T) {
	// Walk every combination of the boolean flags to cover the "for all
	// inputs" property, not just sampled ones.
	for mask := 0; mask < 1<<7; mask++ {
		raw := model.SecuritySettings{
			TimerEnabled:           mask&1 != 0,
			CameraMicEnabled:       mask&2 != 0,
			RestrictMinimize:       mask&4 != 0,
			FullScreenMode:         mask&8 != 0,
			TabSwitchAllowed:       mask&16 != 0,
			DisableClipboard:       mask&32 != 0,
			ScreenRecordingEnabled: mask&64 != 0,
			TimerDurationMinutes:   mask,
			MaxTabSwitches:         mask % 5,
		}

		effective := Evaluate("practice", raw)
		require.Equal(t, Evaluate("practice", model.SecuritySettings{}), effective,
			"practice policy must not depend on raw input (mask %d)", mask)
	}
}

func TestEvaluateAssessmentPassThrough(t *testing.T) {
	raw := restrictiveSettings()
	effective := Evaluate("assessment", raw)
	assert.Equal(t, raw, effective)
}

func TestEvaluateAssessmentDefaultsTabSwitches(t *testing.T) {
	raw := restrictiveSettings()
	raw.MaxTabSwitches = 0
	assert.Equal(t, DefaultMaxTabSwitches, Evaluate("assessment", raw).MaxTabSwitches)

	raw.MaxTabSwitches = -2
	assert.Equal(t, DefaultMaxTabSwitches, Evaluate("assessment", raw).MaxTabSwitches)
}

func TestEvaluateIdempotent(t *testing.T) {
	raw := restrictiveSettings()

	first := Evaluate("assessment", raw)
	second := Evaluate("assessment", first)
	assert.Equal(t, first, second)

	firstPractice := Evaluate("practice", raw)
	secondPractice := Evaluate("practice", firstPractice)
	assert.Equal(t, firstPractice, secondPractice)
}
