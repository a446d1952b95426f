package model

// CategoryAssessment is the category label that activates proctoring.
// Any other category resolves to practice mode.
const CategoryAssessment = "assessment"

// UnlimitedTabSwitches is the sentinel meaning the tab-switch budget is
// effectively unbounded (practice mode).
const UnlimitedTabSwitches = 1<<31 - 1

// SecuritySettings is the proctoring configuration snapshot resolved once
// per session. In practice mode every restrictive flag is forced off
// regardless of the raw input; that is an invariant, not a default.
type SecuritySettings struct {
	TimerEnabled           bool `json:"timer_enabled"`
	TimerDurationMinutes   int  `json:"timer_duration_minutes"`
	CameraMicEnabled       bool `json:"camera_mic_enabled"`
	RestrictMinimize       bool `json:"restrict_minimize"`
	FullScreenMode         bool `json:"full_screen_mode"`
	TabSwitchAllowed       bool `json:"tab_switch_allowed"`
	MaxTabSwitches         int  `json:"max_tab_switches"`
	DisableClipboard       bool `json:"disable_clipboard"`
	ScreenRecordingEnabled bool `json:"screen_recording_enabled"`
}
