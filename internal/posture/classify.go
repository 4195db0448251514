package posture

import (
	"math"
	"strings"
)

// Classification thresholds. Comparisons run on raw pixel/degree values, so
// classification is resolution-dependent; thresholds are tuned for a webcam
// frame around 640x480.
const (
	NeckAngleThresh    = 175.0
	SpineTiltThresh    = 10.0
	ShoulderTiltThresh = 25.0
	LeanThreshold      = 30.0
	HeadDropThresh     = 60

	// goodPostureTolerance relaxes the three base thresholds in the
	// good-posture rule only.
	goodPostureTolerance = 3.0
)

// Status is the posture label for one frame.
type Status string

const (
	StatusNoPerson         Status = "No person detected"
	StatusSeverelySlouched Status = "Severely Slouched"
	StatusSlightlySlouched Status = "Slightly Slouched"
	StatusLeaningForward   Status = "Leaning Forward"
	StatusLeaningBackward  Status = "Leaning Backward"
	StatusSevereLeanLeft   Status = "Severe Lean Left"
	StatusSevereLeanRight  Status = "Severe Lean Right"
	StatusLeaningLeft      Status = "Leaning Left"
	StatusLeaningRight     Status = "Leaning Right"
	StatusGood             Status = "Good Posture"
	StatusBad              Status = "Bad Posture"
)

// IsGood reports whether the label counts as good posture.
func (s Status) IsGood() bool {
	return strings.Contains(string(s), "Good")
}

// Color is the severity color attached to a classification.
type Color string

const (
	ColorGreen  Color = "green"
	ColorOrange Color = "orange"
	ColorRed    Color = "red"
	ColorBlue   Color = "blue"
)

// Classify maps metrics to a posture label and severity color. Rules form an
// ordered decision list: the first match wins, and the order is part of the
// contract (a slouched frame that also satisfies the good-posture thresholds
// classifies as slouched).
//
// The lateral rules label a nose right of the shoulder midline as "Left" and
// vice versa. That mirroring matches front-facing camera output and is kept
// exactly as the mobile clients expect it.
func Classify(m Metrics) (Status, Color) {
	switch {
	case m.NoseY > m.ShoulderYAvg+HeadDropThresh:
		return StatusSeverelySlouched, ColorRed
	case m.NoseY > m.ShoulderYAvg+HeadDropThresh/2:
		return StatusSlightlySlouched, ColorOrange
	case m.NoseShoulderDist < 140:
		return StatusLeaningForward, ColorOrange
	case m.NoseShoulderDist > 200:
		return StatusLeaningBackward, ColorOrange
	case float64(m.NoseX) > float64(m.ShoulderMidX)+LeanThreshold*2.4:
		return StatusSevereLeanLeft, ColorOrange
	case float64(m.NoseX) < float64(m.ShoulderMidX)-LeanThreshold*2.4:
		return StatusSevereLeanRight, ColorOrange
	case float64(m.NoseX) > float64(m.ShoulderMidX)+LeanThreshold*0.5:
		return StatusLeaningLeft, ColorOrange
	case float64(m.NoseX) < float64(m.ShoulderMidX)-LeanThreshold*0.5:
		return StatusLeaningRight, ColorOrange
	case m.NeckAngle >= NeckAngleThresh-goodPostureTolerance &&
		m.SpineTilt <= SpineTiltThresh+goodPostureTolerance &&
		m.ShoulderTilt <= ShoulderTiltThresh+goodPostureTolerance:
		return StatusGood, ColorGreen
	default:
		return StatusBad, ColorRed
	}
}

// Score computes the overall posture score in [0,100] from the neck angle and
// the spine/shoulder tilts. Independent of the classifier label.
func Score(m Metrics) int {
	s := 100.0
	s -= math.Abs(NeckAngleThresh-m.NeckAngle) * 0.4
	s -= m.SpineTilt * 0.4
	s -= m.ShoulderTilt * 0.4

	n := int(s)
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
