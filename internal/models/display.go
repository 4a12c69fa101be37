package models

// StatusColors maps event status to the hex color used by display sinks.
var StatusColors = map[EventStatus]string{
	EventStatusActive:    "#D32F2F",
	EventStatusResolved:  "#388E3C",
	EventStatusCancelled: "#757575",
}

// PhaseColors maps engine phase to the banner color used by display sinks.
var PhaseColors = map[StatePhase]string{
	PhaseIdle:      "#388E3C",
	PhaseCountdown: "#F57C00",
	PhaseActive:    "#D32F2F",
	PhaseResolving: "#1976D2",
}

// TriggerLabels maps trigger kinds to human-readable labels.
var TriggerLabels = map[TriggerKind]string{
	TriggerButtonSequence:  "Volume button sequence",
	TriggerShakeCount:      "Device shake",
	TriggerPowerPressCount: "Power button presses",
	TriggerManual:          "SOS button",
}
