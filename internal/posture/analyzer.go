package posture

import (
	"context"
	"errors"
	"fmt"

	"github.com/uprightlabs/backend/internal/detector"
	"github.com/uprightlabs/backend/internal/models"
	"github.com/uprightlabs/backend/pkg/imaging"
)

// ErrNoDetector is returned when frame analysis is requested but no pose
// detector has been configured.
var ErrNoDetector = errors.New("no pose detector configured")

// Result is the outcome of analyzing one frame. Detection is nil when no
// person was found, which makes the metrics-absent case explicit.
type Result struct {
	Status    Status
	Color     Color
	Score     int
	IsGood    bool
	Detection *Detection
}

// Detection holds the landmark-backed portion of a Result.
type Detection struct {
	Metrics        Metrics
	Landmarks      []models.Landmark
	Pose           string
	AnnotatedImage string
}

// NoDetection is the Result for a frame in which no person was found. It
// scores 0 and counts as a bad frame.
func NoDetection() *Result {
	return &Result{Status: StatusNoPerson, Color: ColorBlue}
}

// Analyzer runs the detector and the metric/classification pipeline for
// single frames. Stateless; safe for concurrent use.
type Analyzer struct {
	det detector.Detector
}

// NewAnalyzer creates an analyzer over the given detector. det may be nil,
// in which case AnalyzeFrame fails with ErrNoDetector.
func NewAnalyzer(det detector.Detector) *Analyzer {
	return &Analyzer{det: det}
}

// AnalyzeFrame validates the frame image and runs the full pipeline:
// detection, metric calculation, classification, scoring. A decode failure
// surfaces as imaging.ErrInvalidImage; any error leaves no partial state.
func (a *Analyzer) AnalyzeFrame(ctx context.Context, frame []byte) (*Result, error) {
	width, height, err := imaging.Decode(frame)
	if err != nil {
		return nil, err
	}
	if a.det == nil {
		return nil, ErrNoDetector
	}

	det, err := a.det.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect pose: %w", err)
	}
	if det == nil || !det.Detected {
		return NoDetection(), nil
	}

	kp, err := ExtractKeypoints(det.Landmarks, width, height)
	if err != nil {
		return nil, err
	}
	m := ComputeMetrics(kp)
	status, color := Classify(m)

	return &Result{
		Status: status,
		Color:  color,
		Score:  Score(m),
		IsGood: status.IsGood(),
		Detection: &Detection{
			Metrics:        m,
			Landmarks:      det.Landmarks,
			Pose:           det.Pose,
			AnnotatedImage: det.AnnotatedImage,
		},
	}, nil
}
