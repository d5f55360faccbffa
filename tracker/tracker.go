// Package tracker implements multi-object tracking over per-frame object
// detections.  Detections carrying a bounding box and an appearance
// embedding are associated with persistent tracks using a priority-ordered
// appearance matching cascade with Kalman motion gating, followed by an IoU
// fallback for young and freshly missed tracks.
package tracker

import (
	"fmt"
)

// Tracker is the per-frame entry point of the multi-object tracking engine.
// Predict and Update must be invoked in that order, once per frame, from a
// single goroutine.
type Tracker struct {
	// metric is the appearance distance metric whose gallery is refreshed
	// at the end of every frame
	metric *NearestNeighborMetric
	// maxIOUDistance is the matching threshold of the IoU fallback round
	maxIOUDistance float32
	// maxAge is the maximum number of consecutive misses before a
	// confirmed track is deleted, and the depth of the matching cascade
	maxAge int
	// nInit is the number of consecutive matches needed to confirm a track
	nInit int
	// kf is the motion model shared by all tracks of this tracker
	kf *KalmanFilter
	// tracks is the live track set
	tracks []*Track
	// nextID is the next track ID to assign, never reused
	nextID int
}

// NewTracker initializes and returns a new Tracker
func NewTracker(metric *NearestNeighborMetric, maxIOUDistance float32,
	maxAge, nInit int) *Tracker {

	return &Tracker{
		metric:         metric,
		maxIOUDistance: maxIOUDistance,
		maxAge:         maxAge,
		nInit:          nInit,
		kf:             NewKalmanFilter(1.0/20, 1.0/160),
		nextID:         1,
	}
}

// Tracks returns the live track set.  Callers typically filter on
// Track.IsConfirmed for presentation.
func (t *Tracker) Tracks() []*Track {
	return t.tracks
}

// Predict propagates all track state distributions one time step forward.
// Called once per frame, before Update.
func (t *Tracker) Predict() {
	for _, track := range t.tracks {
		track.Predict(t.kf)
	}
}

// Update performs the measurement update and track management for one
// frame.  A returned error indicates a collaborator contract breach; the
// track set is left in an undefined mid-frame state and the session should
// be abandoned.
func (t *Tracker) Update(detections []Detection) error {

	matches, unmatchedTracks, unmatchedDetections, err := t.match(detections)

	if err != nil {
		return err
	}

	// apply lifecycle transitions
	for _, m := range matches {
		err := t.tracks[m.TrackIdx].Update(t.kf, detections[m.DetectionIdx])

		if err != nil {
			return fmt.Errorf("measurement update: %w", err)
		}
	}

	for _, trackIdx := range unmatchedTracks {
		t.tracks[trackIdx].MarkMissed()
	}

	for _, detIdx := range unmatchedDetections {
		t.initiateTrack(detections[detIdx])
	}

	// drop tracks that reached their terminal state this frame
	live := make([]*Track, 0, len(t.tracks))

	for _, track := range t.tracks {
		if !track.IsDeleted() {
			live = append(live, track)
		}
	}

	t.tracks = live

	// fold the surviving confirmed tracks' buffered features into the
	// metric gallery.  Matching for this frame is already finalized, so
	// the refresh cannot influence this frame's own associations.
	var features [][]float32
	var targets, activeTargets []int

	for _, track := range t.tracks {

		if !track.IsConfirmed() {
			continue
		}

		activeTargets = append(activeTargets, track.TrackID())

		for _, feature := range track.takeFeatures() {
			features = append(features, feature)
			targets = append(targets, track.TrackID())
		}
	}

	t.metric.PartialFit(features, targets, activeTargets)

	return nil
}

// match associates the current detections with the live track set using the
// appearance cascade over confirmed tracks and an IoU fallback round over
// unconfirmed and freshly missed tracks
func (t *Tracker) match(detections []Detection) (matches []MatchPair,
	unmatchedTracks, unmatchedDetections []int, err error) {

	// the partitions must stay non-nil: the matching rounds treat a nil
	// index slice as selecting every track
	confirmed := make([]int, 0, len(t.tracks))
	unconfirmed := make([]int, 0, len(t.tracks))

	for i, track := range t.tracks {
		if track.IsConfirmed() {
			confirmed = append(confirmed, i)
		} else {
			unconfirmed = append(unconfirmed, i)
		}
	}

	// appearance distance with motion gating applied
	gatedMetric := func(tracks []*Track, dets []Detection,
		trackIndices, detectionIndices []int) ([][]float32, error) {

		features := make([][]float32, len(detectionIndices))

		for i, detIdx := range detectionIndices {

			if dets[detIdx].Feature == nil {
				return nil, fmt.Errorf(
					"detection %d has no appearance feature", detIdx)
			}

			features[i] = dets[detIdx].Feature
		}

		targets := make([]int, len(trackIndices))

		for i, trackIdx := range trackIndices {
			targets[i] = tracks[trackIdx].TrackID()
		}

		costMatrix := t.metric.Distance(features, targets)

		return GateCostMatrix(t.kf, costMatrix, tracks, dets,
			trackIndices, detectionIndices, false)
	}

	// associate confirmed tracks using appearance features, most recently
	// matched tracks first
	matchesA, unmatchedTracksA, unmatchedDetections, err := MatchingCascade(
		gatedMetric, t.metric.MatchingThreshold(), t.maxAge,
		t.tracks, detections, confirmed)

	if err != nil {
		return nil, nil, nil, fmt.Errorf("appearance cascade: %w", err)
	}

	// associate remaining tracks together with unconfirmed tracks using
	// IoU.  Confirmed tracks missed more than one frame ago keep their
	// stale box estimates and sit this round out.
	iouCandidates := append([]int{}, unconfirmed...)
	var staleTracks []int

	for _, trackIdx := range unmatchedTracksA {
		if t.tracks[trackIdx].TimeSinceUpdate() == 1 {
			iouCandidates = append(iouCandidates, trackIdx)
		} else {
			staleTracks = append(staleTracks, trackIdx)
		}
	}

	matchesB, unmatchedTracksB, unmatchedDetections, err := MinCostMatching(
		IOUCost, t.maxIOUDistance, t.tracks, detections,
		iouCandidates, unmatchedDetections)

	if err != nil {
		return nil, nil, nil, fmt.Errorf("iou fallback: %w", err)
	}

	matches = append(matchesA, matchesB...)

	// union of the two rounds' unmatched tracks, unique membership
	seen := make(map[int]bool, len(staleTracks)+len(unmatchedTracksB))

	for _, trackIdx := range append(staleTracks, unmatchedTracksB...) {
		if !seen[trackIdx] {
			seen[trackIdx] = true
			unmatchedTracks = append(unmatchedTracks, trackIdx)
		}
	}

	return matches, unmatchedTracks, unmatchedDetections, nil
}

// initiateTrack spawns a new tentative track from an unmatched detection
func (t *Tracker) initiateTrack(det Detection) {
	t.tracks = append(t.tracks, NewTrack(t.kf, det, t.nextID, t.nInit, t.maxAge))
	t.nextID++
}
