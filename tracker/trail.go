package tracker

import "sync"

// Point represents the x,y coordinates of the center of a tracked
// bounding box
type Point struct {
	X, Y int
}

// Trail keeps a bounded history of box center points per track ID, used
// for drawing movement trails
type Trail struct {
	// size is the maximum number of most recent points to keep per track
	size int
	// history of tracked center points per track ID
	history map[int][]Point
	sync.Mutex
}

// NewTrail returns a new trail history instance.  Size specifies the
// maximum length of the trail maintained per track.
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[int][]Point),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int][]Point)
}

// Add records the current box center of the track in its history
func (t *Trail) Add(track *Track) {
	t.Lock()
	defer t.Unlock()

	rect := track.GetRect()

	points := append(t.history[track.TrackID()], Point{
		X: int(rect.TLX() + rect.Width()/2),
		Y: int(rect.TLY() + rect.Height()/2),
	})

	// drop the oldest point once the history is exceeded
	if len(points) > t.size {
		points = points[1:]
	}

	t.history[track.TrackID()] = points
}

// GetPoints gets the point history for a specific track id
func (t *Trail) GetPoints(id int) []Point {
	t.Lock()
	defer t.Unlock()

	return t.history[id]
}
