package posture

import (
	"math"
	"strings"
	"testing"

	"github.com/uprightlabs/backend/internal/models"
)

func lm(name string, x, y float64) models.Landmark {
	return models.Landmark{Name: name, X: x, Y: y}
}

func fullLandmarks() []models.Landmark {
	return []models.Landmark{
		lm(models.LandmarkNose, 0.5, 0.1),
		lm(models.LandmarkLeftShoulder, 0.4, 0.5),
		lm(models.LandmarkRightShoulder, 0.6, 0.5),
		lm(models.LandmarkLeftHip, 0.45, 0.9),
		lm(models.LandmarkRightHip, 0.55, 0.9),
	}
}

func TestAngle_KnownValues(t *testing.T) {
	cases := []struct {
		name    string
		a, b, c Point
		want    float64
	}{
		{"right angle", Point{0, 1}, Point{0, 0}, Point{1, 0}, 90},
		{"straight line", Point{0, -1}, Point{0, 0}, Point{0, 1}, 180},
		{"collinear same side", Point{0, 1}, Point{0, 0}, Point{0, 2}, 0},
		{"45 degrees", Point{1, 0}, Point{0, 0}, Point{1, 1}, 45},
	}
	for _, tc := range cases {
		got := Angle(tc.a, tc.b, tc.c)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s: Angle = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAngle_DegenerateVectorIsZero(t *testing.T) {
	// Vertex coincides with an endpoint: zero-magnitude vector, not an error.
	if got := Angle(Point{5, 5}, Point{5, 5}, Point{1, 0}); got != 0 {
		t.Fatalf("Angle with zero vector = %v, want 0", got)
	}
}

func TestExtractKeypoints_ScalesAndTruncates(t *testing.T) {
	landmarks := []models.Landmark{
		lm(models.LandmarkNose, 0.5015, 0.2509),
		lm(models.LandmarkLeftShoulder, 0.25, 0.5),
		lm(models.LandmarkRightShoulder, 0.75, 0.5),
		lm(models.LandmarkLeftHip, 0.3, 0.9),
		lm(models.LandmarkRightHip, 0.7, 0.9),
	}
	kp, err := ExtractKeypoints(landmarks, 640, 480)
	if err != nil {
		t.Fatalf("ExtractKeypoints: %v", err)
	}
	// 0.5015*640 = 320.96 and 0.2509*480 = 120.432 truncate, not round.
	if kp.Nose != (Point{320, 120}) {
		t.Fatalf("nose = %+v, want {320 120}", kp.Nose)
	}
	if kp.Neck != (Point{320, 240}) {
		t.Fatalf("neck midpoint = %+v, want {320 240}", kp.Neck)
	}
	if kp.MidHip != (Point{320, 432}) {
		t.Fatalf("mid-hip midpoint = %+v, want {320 432}", kp.MidHip)
	}
}

func TestExtractKeypoints_MissingLandmark(t *testing.T) {
	landmarks := fullLandmarks()
	// Drop the right hip.
	kept := landmarks[:0]
	for _, l := range landmarks {
		if l.Name != models.LandmarkRightHip {
			kept = append(kept, l)
		}
	}
	_, err := ExtractKeypoints(kept, 640, 480)
	if err == nil {
		t.Fatal("expected error for missing landmark")
	}
	if !strings.Contains(err.Error(), models.LandmarkRightHip) {
		t.Fatalf("error should name the missing landmark, got %q", err)
	}
}

func TestComputeMetrics(t *testing.T) {
	kp := Keypoints{
		LeftShoulder:  Point{256, 230},
		RightShoulder: Point{384, 250},
		Neck:          Point{320, 240},
		LeftHip:       Point{288, 432},
		RightHip:      Point{352, 432},
		MidHip:        Point{330, 432},
		Nose:          Point{320, 48},
	}
	m := ComputeMetrics(kp)
	if m.SpineTilt != 10 {
		t.Fatalf("spine tilt = %v, want 10", m.SpineTilt)
	}
	if m.ShoulderTilt != 20 {
		t.Fatalf("shoulder tilt = %v, want 20", m.ShoulderTilt)
	}
	if m.NoseShoulderDist != 192 {
		t.Fatalf("nose-shoulder distance = %v, want 192", m.NoseShoulderDist)
	}
	if m.ShoulderMidX != 320 || m.NoseX != 320 || m.NoseY != 48 || m.ShoulderYAvg != 240 {
		t.Fatalf("raw positions = %+v", m)
	}
	if m.NeckAngle <= 0 || m.NeckAngle > 180 {
		t.Fatalf("neck angle out of range: %v", m.NeckAngle)
	}
}

func TestComputeMetrics_StraightPosture(t *testing.T) {
	// Nose, neck and mid-hip on one vertical line: a fully straight neck.
	kp := Keypoints{
		LeftShoulder:  Point{256, 240},
		RightShoulder: Point{384, 240},
		Neck:          Point{320, 240},
		LeftHip:       Point{288, 432},
		RightHip:      Point{352, 432},
		MidHip:        Point{320, 432},
		Nose:          Point{320, 48},
	}
	m := ComputeMetrics(kp)
	if math.Abs(m.NeckAngle-180) > 1e-9 {
		t.Fatalf("neck angle = %v, want 180", m.NeckAngle)
	}
	if m.SpineTilt != 0 || m.ShoulderTilt != 0 {
		t.Fatalf("tilts = %v/%v, want 0/0", m.SpineTilt, m.ShoulderTilt)
	}
}
