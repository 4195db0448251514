package posture

import (
	"fmt"
	"math"

	"github.com/uprightlabs/backend/internal/models"
)

// Point is a body point in pixel space. Coordinates are truncated to whole
// pixels when landmarks are scaled, matching the tuning of the thresholds.
type Point struct {
	X int
	Y int
}

// Keypoints are the pixel-space body points the classifier works from.
// Neck and MidHip are midpoints derived from the shoulder and hip pairs.
type Keypoints struct {
	LeftShoulder  Point
	RightShoulder Point
	Neck          Point
	LeftHip       Point
	RightHip      Point
	MidHip        Point
	Nose          Point
}

// Metrics are the scalar posture measurements derived from one frame.
// All values are in pixels except NeckAngle (degrees).
type Metrics struct {
	NeckAngle        float64 `json:"neck_angle"`
	SpineTilt        float64 `json:"spine_tilt"`
	ShoulderTilt     float64 `json:"shoulder_tilt"`
	NoseShoulderDist float64 `json:"nose_shoulder_distance"`
	ShoulderMidX     int     `json:"-"`
	NoseX            int     `json:"-"`
	NoseY            int     `json:"-"`
	ShoulderYAvg     int     `json:"-"`
}

// ExtractKeypoints scales normalized landmarks to pixel space and derives the
// neck and mid-hip midpoints. Errors when a required landmark is missing.
func ExtractKeypoints(landmarks []models.Landmark, width, height int) (Keypoints, error) {
	required := []string{
		models.LandmarkNose,
		models.LandmarkLeftShoulder,
		models.LandmarkRightShoulder,
		models.LandmarkLeftHip,
		models.LandmarkRightHip,
	}
	points := make(map[string]Point, len(required))
	for _, name := range required {
		lm, ok := models.FindLandmark(landmarks, name)
		if !ok {
			return Keypoints{}, fmt.Errorf("landmark %s missing from detector output", name)
		}
		points[name] = Point{
			X: int(lm.X * float64(width)),
			Y: int(lm.Y * float64(height)),
		}
	}

	kp := Keypoints{
		LeftShoulder:  points[models.LandmarkLeftShoulder],
		RightShoulder: points[models.LandmarkRightShoulder],
		LeftHip:       points[models.LandmarkLeftHip],
		RightHip:      points[models.LandmarkRightHip],
		Nose:          points[models.LandmarkNose],
	}
	kp.Neck = Point{
		X: (kp.LeftShoulder.X + kp.RightShoulder.X) / 2,
		Y: (kp.LeftShoulder.Y + kp.RightShoulder.Y) / 2,
	}
	kp.MidHip = Point{
		X: (kp.LeftHip.X + kp.RightHip.X) / 2,
		Y: (kp.LeftHip.Y + kp.RightHip.Y) / 2,
	}
	return kp, nil
}

// Angle computes the angle in degrees at vertex b formed by points a and c.
// Returns 0 when either vector has zero magnitude (degenerate pose, not an error).
func Angle(a, b, c Point) float64 {
	bax := float64(a.X - b.X)
	bay := float64(a.Y - b.Y)
	bcx := float64(c.X - b.X)
	bcy := float64(c.Y - b.Y)

	dot := bax*bcx + bay*bcy
	magBA := math.Sqrt(bax*bax + bay*bay)
	magBC := math.Sqrt(bcx*bcx + bcy*bcy)
	if magBA*magBC == 0 {
		return 0
	}

	cos := dot / (magBA * magBC)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// ComputeMetrics derives the posture metrics from extracted keypoints.
func ComputeMetrics(kp Keypoints) Metrics {
	return Metrics{
		NeckAngle:        Angle(kp.Nose, kp.Neck, kp.MidHip),
		SpineTilt:        math.Abs(float64(kp.Neck.X - kp.MidHip.X)),
		ShoulderTilt:     math.Abs(float64(kp.LeftShoulder.Y - kp.RightShoulder.Y)),
		NoseShoulderDist: math.Abs(float64(kp.Nose.Y - (kp.LeftShoulder.Y+kp.RightShoulder.Y)/2)),
		ShoulderMidX:     (kp.LeftShoulder.X + kp.RightShoulder.X) / 2,
		NoseX:            kp.Nose.X,
		NoseY:            kp.Nose.Y,
		ShoulderYAvg:     (kp.LeftShoulder.Y + kp.RightShoulder.Y) / 2,
	}
}
