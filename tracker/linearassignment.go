package tracker

import (
	"fmt"
)

const (
	// InftyCost is the sentinel written into cost matrix entries whose
	// track/detection pairing has been ruled out by gating
	InftyCost = float32(1e5)

	// clampMargin is added to maxDistance when clamping infeasible entries
	// so the solver never prefers an infeasible pair over leaving a row
	// unmatched
	clampMargin = float32(1e-5)
)

// CostFunc computes a cost matrix for the given track and detection index
// subsets.  Row i corresponds to trackIndices[i] and column j to
// detectionIndices[j].  A returned error indicates a collaborator contract
// breach and aborts the frame.
type CostFunc func(tracks []*Track, detections []Detection,
	trackIndices, detectionIndices []int) ([][]float32, error)

// MatchPair associates a track index with a detection index, both relative
// to the full track and detection lists
type MatchPair struct {
	TrackIdx     int
	DetectionIdx int
}

// allIndices returns [0, n)
func allIndices(n int) []int {
	indices := make([]int, n)

	for i := range indices {
		indices[i] = i
	}

	return indices
}

// MinCostMatching solves the minimum cost matching between the given track
// and detection subsets using costFn, rejecting any pairing whose cost
// exceeds maxDistance.  Passing nil index slices selects all tracks or all
// detections.  Returned indices are relative to the full lists.
func MinCostMatching(costFn CostFunc, maxDistance float32, tracks []*Track,
	detections []Detection, trackIndices, detectionIndices []int) (
	matches []MatchPair, unmatchedTracks, unmatchedDetections []int, err error) {

	if trackIndices == nil {
		trackIndices = allIndices(len(tracks))
	}

	if detectionIndices == nil {
		detectionIndices = allIndices(len(detections))
	}

	// nothing to match
	if len(trackIndices) == 0 || len(detectionIndices) == 0 {
		return nil, trackIndices, detectionIndices, nil
	}

	costMatrix, err := costFn(tracks, detections, trackIndices, detectionIndices)

	if err != nil {
		return nil, nil, nil, fmt.Errorf("cost function failed: %w", err)
	}

	if len(costMatrix) != len(trackIndices) {
		return nil, nil, nil, fmt.Errorf("cost matrix has %d rows, want %d",
			len(costMatrix), len(trackIndices))
	}

	// clamp infeasible entries into a copy so the original costs remain
	// available for the post-solve feasibility check
	clamped := make([][]float32, len(costMatrix))

	for i, row := range costMatrix {

		if len(row) != len(detectionIndices) {
			return nil, nil, nil, fmt.Errorf(
				"cost matrix row %d has %d columns, want %d",
				i, len(row), len(detectionIndices))
		}

		clamped[i] = make([]float32, len(row))

		for j, c := range row {
			if c > maxDistance {
				c = maxDistance + clampMargin
			}
			clamped[i][j] = c
		}
	}

	rowSol, _, err := solveRectangular(clamped)

	if err != nil {
		return nil, nil, nil, fmt.Errorf("assignment solver failed: %w", err)
	}

	// the returned index slices must stay non-nil even when empty: callers
	// feed them back into matching rounds where nil means "all indices"
	matches = make([]MatchPair, 0, len(rowSol))
	unmatchedTracks = make([]int, 0, len(trackIndices))
	unmatchedDetections = make([]int, 0, len(detectionIndices))

	matchedCols := make([]bool, len(detectionIndices))

	for row, col := range rowSol {

		if col < 0 {
			unmatchedTracks = append(unmatchedTracks, trackIndices[row])
			continue
		}

		// reject solver pairings that only exist because of clamping
		if costMatrix[row][col] > maxDistance {
			unmatchedTracks = append(unmatchedTracks, trackIndices[row])
			unmatchedDetections = append(unmatchedDetections, detectionIndices[col])
			matchedCols[col] = true
			continue
		}

		matches = append(matches, MatchPair{
			TrackIdx:     trackIndices[row],
			DetectionIdx: detectionIndices[col],
		})
		matchedCols[col] = true
	}

	for col, used := range matchedCols {
		if !used {
			unmatchedDetections = append(unmatchedDetections, detectionIndices[col])
		}
	}

	return matches, unmatchedTracks, unmatchedDetections, nil
}

// MatchingCascade runs MinCostMatching in priority tiers ordered by how
// recently each track was last matched: tracks missed for fewer frames get
// first claim on the detection pool.  cascadeDepth is normally the
// tracker's maxAge.  Passing a nil track index slice selects all tracks.
func MatchingCascade(costFn CostFunc, maxDistance float32, cascadeDepth int,
	tracks []*Track, detections []Detection, trackIndices []int) (
	matches []MatchPair, unmatchedTracks, unmatchedDetections []int, err error) {

	if trackIndices == nil {
		trackIndices = allIndices(len(tracks))
	}

	matches = make([]MatchPair, 0, len(trackIndices))
	unmatchedDetections = allIndices(len(detections))

	for level := 0; level < cascadeDepth; level++ {

		// all detections consumed by higher priority levels
		if len(unmatchedDetections) == 0 {
			break
		}

		var levelIndices []int

		for _, k := range trackIndices {
			if tracks[k].TimeSinceUpdate() == level+1 {
				levelIndices = append(levelIndices, k)
			}
		}

		// nothing to match at this level
		if len(levelIndices) == 0 {
			continue
		}

		var levelMatches []MatchPair

		levelMatches, _, unmatchedDetections, err = MinCostMatching(
			costFn, maxDistance, tracks, detections,
			levelIndices, unmatchedDetections)

		if err != nil {
			return nil, nil, nil, fmt.Errorf("cascade level %d: %w", level, err)
		}

		matches = append(matches, levelMatches...)
	}

	matched := make(map[int]bool, len(matches))

	for _, m := range matches {
		matched[m.TrackIdx] = true
	}

	unmatchedTracks = make([]int, 0, len(trackIndices))

	for _, k := range trackIndices {
		if !matched[k] {
			unmatchedTracks = append(unmatchedTracks, k)
		}
	}

	return matches, unmatchedTracks, unmatchedDetections, nil
}

// GateCostMatrix invalidates infeasible entries in the cost matrix based on
// the state distributions obtained by Kalman filtering.  Entries whose
// squared Mahalanobis distance exceeds the 95% chi-square quantile for the
// gating degrees of freedom are overwritten with InftyCost.  The returned
// matrix is the one callers must use downstream.
func GateCostMatrix(kf *KalmanFilter, costMatrix [][]float32, tracks []*Track,
	detections []Detection, trackIndices, detectionIndices []int,
	onlyPosition bool) ([][]float32, error) {

	if len(costMatrix) != len(trackIndices) {
		return nil, fmt.Errorf("cost matrix has %d rows, want %d",
			len(costMatrix), len(trackIndices))
	}

	gatingDim := 4

	if onlyPosition {
		gatingDim = 2
	}

	gatingThreshold := chiSquareInv95[gatingDim]

	measurements := make([]DetectBox, len(detectionIndices))

	for i, detIdx := range detectionIndices {
		measurements[i] = DetectBox(detections[detIdx].Rect.GetXyah())
	}

	for row, trackIdx := range trackIndices {

		if len(costMatrix[row]) != len(detectionIndices) {
			return nil, fmt.Errorf("cost matrix row %d has %d columns, want %d",
				row, len(costMatrix[row]), len(detectionIndices))
		}

		track := tracks[trackIdx]

		distances, err := kf.GatingDistance(track.mean, &track.covariance,
			measurements, onlyPosition)

		if err != nil {
			return nil, fmt.Errorf("gating distance for track %d: %w",
				track.TrackID(), err)
		}

		for col, dist := range distances {
			if dist > gatingThreshold {
				costMatrix[row][col] = InftyCost
			}
		}
	}

	return costMatrix, nil
}
