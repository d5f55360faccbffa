package tracker

// Detection represents a single object detection reported by the upstream
// detector for one frame
type Detection struct {
	// Rect is the bounding box of the detected object
	Rect Rect
	// Class is the class label of the object detected
	Class int
	// Score is the confidence/probability of the object detected
	Score float32
	// Feature is the appearance embedding produced by the ReID network for
	// the image patch inside Rect
	Feature []float32
}

// NewDetection is a constructor function for the Detection struct
func NewDetection(rect Rect, class int, score float32, feature []float32) Detection {
	return Detection{
		Rect:    rect,
		Class:   class,
		Score:   score,
		Feature: feature,
	}
}
