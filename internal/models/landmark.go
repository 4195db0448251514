package models

// Names of the body points the posture pipeline requires. They follow the
// detector's landmark naming so responses can carry the dump through unchanged.
const (
	LandmarkNose          = "NOSE"
	LandmarkLeftShoulder  = "LEFT_SHOULDER"
	LandmarkRightShoulder = "RIGHT_SHOULDER"
	LandmarkLeftHip       = "LEFT_HIP"
	LandmarkRightHip      = "RIGHT_HIP"
)

// Landmark is one named body point from the external detector.
// X/Y/Z are normalized to [0,1]; Visibility is the detector's confidence.
type Landmark struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// FindLandmark returns the landmark with the given name.
func FindLandmark(landmarks []Landmark, name string) (Landmark, bool) {
	for _, lm := range landmarks {
		if lm.Name == name {
			return lm, true
		}
	}
	return Landmark{}, false
}
