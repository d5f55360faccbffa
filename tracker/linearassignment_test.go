package tracker

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// fixedCost returns a CostFunc that serves the given matrix regardless of
// the index subsets
func fixedCost(matrix [][]float32) CostFunc {
	return func(tracks []*Track, detections []Detection,
		trackIndices, detectionIndices []int) ([][]float32, error) {
		return matrix, nil
	}
}

func TestMinCostMatchingEmptyInputs(t *testing.T) {

	invoked := false

	costFn := func(tracks []*Track, detections []Detection,
		trackIndices, detectionIndices []int) ([][]float32, error) {
		invoked = true
		return nil, nil
	}

	detections := []Detection{{}, {}}

	matches, unmatchedTracks, unmatchedDetections, err := MinCostMatching(
		costFn, 0.5, nil, detections, nil, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if invoked {
		t.Errorf("cost function invoked for empty track list")
	}

	if len(matches) != 0 || len(unmatchedTracks) != 0 {
		t.Errorf("expected no matches and no unmatched tracks")
	}

	if len(unmatchedDetections) != 2 {
		t.Errorf("expected 2 unmatched detections, got %d", len(unmatchedDetections))
	}
}

func TestMinCostMatchingThresholdRecheck(t *testing.T) {

	tracks := []*Track{{}, {}}
	detections := []Detection{{}, {}}

	costFn := fixedCost([][]float32{
		{0.1, 0.9},
		{0.9, 0.95},
	})

	matches, unmatchedTracks, unmatchedDetections, err := MinCostMatching(
		costFn, 0.5, tracks, detections, nil, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(matches) != 1 || matches[0].TrackIdx != 0 || matches[0].DetectionIdx != 0 {
		t.Errorf("expected single match (0,0), got %v", matches)
	}

	if len(unmatchedTracks) != 1 || unmatchedTracks[0] != 1 {
		t.Errorf("expected track 1 unmatched, got %v", unmatchedTracks)
	}

	if len(unmatchedDetections) != 1 || unmatchedDetections[0] != 1 {
		t.Errorf("expected detection 1 unmatched, got %v", unmatchedDetections)
	}
}

func TestMinCostMatchingSubsetIndexing(t *testing.T) {

	tracks := []*Track{{}, {}, {}}
	detections := []Detection{{}, {}, {}}

	// rows follow trackIndices order (2 then 0), columns detectionIndices
	costFn := fixedCost([][]float32{
		{0.4},
		{0.1},
	})

	matches, unmatchedTracks, unmatchedDetections, err := MinCostMatching(
		costFn, 0.5, tracks, detections, []int{2, 0}, []int{1})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(matches) != 1 || matches[0].TrackIdx != 0 || matches[0].DetectionIdx != 1 {
		t.Errorf("expected match of track 0 to detection 1, got %v", matches)
	}

	if len(unmatchedTracks) != 1 || unmatchedTracks[0] != 2 {
		t.Errorf("expected track 2 unmatched, got %v", unmatchedTracks)
	}

	if len(unmatchedDetections) != 0 {
		t.Errorf("expected no unmatched detections, got %v", unmatchedDetections)
	}
}

func TestMinCostMatchingShapeViolation(t *testing.T) {

	tracks := []*Track{{}, {}}
	detections := []Detection{{}}

	costFn := fixedCost([][]float32{
		{0.1},
	})

	_, _, _, err := MinCostMatching(costFn, 0.5, tracks, detections, nil, nil)

	if err == nil {
		t.Errorf("expected error for cost matrix with wrong row count")
	}
}

func TestMatchingCascadePriority(t *testing.T) {

	// track 0 missed this frame, track 1 missed two frames ago
	tracks := []*Track{
		{timeSinceUpdate: 1},
		{timeSinceUpdate: 2},
	}
	detections := []Detection{{}}

	// the single detection is an equally good candidate for both tracks
	costFn := func(ts []*Track, dets []Detection,
		trackIndices, detectionIndices []int) ([][]float32, error) {

		matrix := make([][]float32, len(trackIndices))
		for i := range matrix {
			matrix[i] = make([]float32, len(detectionIndices))
			for j := range matrix[i] {
				matrix[i][j] = 0.1
			}
		}
		return matrix, nil
	}

	matches, unmatchedTracks, unmatchedDetections, err := MatchingCascade(
		costFn, 0.5, 30, tracks, detections, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// the recently missed track wins the detection
	if len(matches) != 1 || matches[0].TrackIdx != 0 || matches[0].DetectionIdx != 0 {
		t.Errorf("expected track 0 to claim the detection, got %v", matches)
	}

	if len(unmatchedTracks) != 1 || unmatchedTracks[0] != 1 {
		t.Errorf("expected track 1 unmatched, got %v", unmatchedTracks)
	}

	if len(unmatchedDetections) != 0 {
		t.Errorf("expected no unmatched detections, got %v", unmatchedDetections)
	}
}

func TestMatchingCascadeDetectionConservation(t *testing.T) {

	tracks := []*Track{
		{timeSinceUpdate: 1},
		{timeSinceUpdate: 3},
		{timeSinceUpdate: 5},
	}
	detections := []Detection{{}, {}, {}, {}}

	// each level matches at most its own track, leaving the rest
	costFn := func(ts []*Track, dets []Detection,
		trackIndices, detectionIndices []int) ([][]float32, error) {

		matrix := make([][]float32, len(trackIndices))
		for i := range matrix {
			matrix[i] = make([]float32, len(detectionIndices))
			for j := range matrix[i] {
				matrix[i][j] = 0.2
			}
		}
		return matrix, nil
	}

	matches, unmatchedTracks, unmatchedDetections, err := MatchingCascade(
		costFn, 0.5, 10, tracks, detections, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// every detection appears exactly once across matches and unmatched
	seen := make(map[int]int)

	for _, m := range matches {
		seen[m.DetectionIdx]++
	}

	for _, d := range unmatchedDetections {
		seen[d]++
	}

	for d := 0; d < len(detections); d++ {
		if seen[d] != 1 {
			t.Errorf("detection %d appears %d times, want exactly once", d, seen[d])
		}
	}

	if len(matches)+len(unmatchedTracks) != len(tracks) {
		t.Errorf("matches (%d) + unmatched tracks (%d) != track count (%d)",
			len(matches), len(unmatchedTracks), len(tracks))
	}
}

func TestGateCostMatrix(t *testing.T) {

	kf := NewKalmanFilter(1.0/20, 1.0/160)

	track := &Track{
		mean:       make(StateMean, 8),
		covariance: StateCov{mat.NewDense(8, 8, nil)},
	}

	kf.Initiate(track.mean, &track.covariance, DetectBox{100, 200, 1.0, 50})
	kf.Predict(track.mean, &track.covariance)

	tracks := []*Track{track}
	detections := []Detection{
		{Rect: NewRect(75, 175, 50, 50)},  // xyah (100, 200, 1, 50)
		{Rect: NewRect(500, 500, 50, 50)}, // far away
	}

	costMatrix := [][]float32{{0.1, 0.1}}

	gated, err := GateCostMatrix(kf, costMatrix, tracks, detections,
		[]int{0}, []int{0, 1}, false)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gated[0][0] != 0.1 {
		t.Errorf("plausible pair cost changed: got %f, want 0.1", gated[0][0])
	}

	if gated[0][1] != InftyCost {
		t.Errorf("implausible pair not gated: got %f, want %f", gated[0][1], InftyCost)
	}
}
