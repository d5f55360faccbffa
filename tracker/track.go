package tracker

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TrackState represents the lifecycle state of a track
type TrackState int

const (
	// Tentative tracks have been created recently and await enough
	// consecutive matches to be confirmed
	Tentative TrackState = 1
	// Confirmed tracks have been matched nInit frames in a row
	Confirmed TrackState = 2
	// Deleted tracks are terminal and removed from the live set at the
	// next frame boundary
	Deleted TrackState = 3
)

// String returns the state name
func (s TrackState) String() string {
	switch s {
	case Tentative:
		return "Tentative"
	case Confirmed:
		return "Confirmed"
	case Deleted:
		return "Deleted"
	}

	return "Unknown"
}

// Track represents one persistent tracked object.  The motion state is
// owned by the track and only mutated through the Kalman filter passed to
// Predict and Update.
type Track struct {
	// Mean state vector of the motion model
	mean StateMean
	// Covariance matrix of the motion model
	covariance StateCov
	// Unique ID for the track, never reused
	trackID int
	// Number of consecutive successful updates since creation
	hits int
	// Total frames since creation
	age int
	// Frames since the last successful measurement update
	timeSinceUpdate int
	// Current lifecycle state
	state TrackState
	// Appearance features accumulated since the last metric refresh
	features [][]float32
	// Object class carried from the detection that spawned or last
	// updated the track
	classID int
	// Detection score of the last matched detection
	score float32
	// Number of consecutive matches needed to confirm the track
	nInit int
	// Maximum number of consecutive misses before a confirmed track is
	// deleted
	maxAge int
}

// NewTrack creates a new Tentative track from an unassociated detection.
// The motion state is initiated from the detection box by the Kalman filter.
func NewTrack(kf *KalmanFilter, det Detection, trackID, nInit, maxAge int) *Track {

	t := &Track{
		mean:       make(StateMean, 8),
		covariance: StateCov{mat.NewDense(8, 8, nil)},
		trackID:    trackID,
		hits:       0,
		age:        0,
		state:      Tentative,
		classID:    det.Class,
		score:      det.Score,
		nInit:      nInit,
		maxAge:     maxAge,
	}

	kf.Initiate(t.mean, &t.covariance, DetectBox(det.Rect.GetXyah()))

	if det.Feature != nil {
		t.features = append(t.features, det.Feature)
	}

	return t
}

// TrackID returns the unique ID for the track
func (t *Track) TrackID() int {
	return t.trackID
}

// State returns the current lifecycle state of the track
func (t *Track) State() TrackState {
	return t.state
}

// IsTentative returns whether the track is awaiting confirmation
func (t *Track) IsTentative() bool {
	return t.state == Tentative
}

// IsConfirmed returns whether the track has been confirmed
func (t *Track) IsConfirmed() bool {
	return t.state == Confirmed
}

// IsDeleted returns whether the track has reached its terminal state
func (t *Track) IsDeleted() bool {
	return t.state == Deleted
}

// Hits returns the number of consecutive successful updates
func (t *Track) Hits() int {
	return t.hits
}

// Age returns the total number of frames since creation
func (t *Track) Age() int {
	return t.age
}

// TimeSinceUpdate returns the number of frames since the last successful
// measurement update
func (t *Track) TimeSinceUpdate() int {
	return t.timeSinceUpdate
}

// Class returns the object class of the track
func (t *Track) Class() int {
	return t.classID
}

// Score returns the detection score of the last matched detection
func (t *Track) Score() float32 {
	return t.score
}

// GetRect returns the current bounding box estimate derived from the
// motion state
func (t *Track) GetRect() Rect {
	return GenerateRectByXyah(Xyah{t.mean[0], t.mean[1], t.mean[2], t.mean[3]})
}

// Predict propagates the state distribution one time step forward using
// the Kalman filter.  Called once per frame for every live track.
func (t *Track) Predict(kf *KalmanFilter) {
	kf.Predict(t.mean, &t.covariance)
	t.age++
	t.timeSinceUpdate++
}

// Update runs the Kalman filter correction step with the associated
// detection and applies the successful-match lifecycle transition
func (t *Track) Update(kf *KalmanFilter, det Detection) error {

	err := kf.Update(t.mean, &t.covariance, DetectBox(det.Rect.GetXyah()))

	if err != nil {
		return fmt.Errorf("error updating track %d: %w", t.trackID, err)
	}

	if det.Feature != nil {
		t.features = append(t.features, det.Feature)
	}

	t.classID = det.Class
	t.score = det.Score
	t.hits++
	t.timeSinceUpdate = 0

	if t.state == Tentative && t.hits >= t.nInit {
		t.state = Confirmed
	}

	return nil
}

// MarkMissed applies the missed-match lifecycle transition.  Tentative
// tracks are deleted on their first miss; confirmed tracks are deleted
// once they have gone unmatched for more than maxAge frames.
func (t *Track) MarkMissed() {
	if t.state == Tentative {
		t.state = Deleted
	} else if t.timeSinceUpdate > t.maxAge {
		t.state = Deleted
	}
}

// takeFeatures returns the accumulated feature buffer and clears it
func (t *Track) takeFeatures() [][]float32 {
	features := t.features
	t.features = nil
	return features
}
