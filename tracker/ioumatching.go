package tracker

// IOUCost is a CostFunc computing 1 - IoU between each track's predicted
// bounding box and each detection box.  Tracks that were not matched in the
// previous frame carry a stale box estimate, so their rows are set to
// InftyCost and left for the appearance cascade on later frames.
func IOUCost(tracks []*Track, detections []Detection,
	trackIndices, detectionIndices []int) ([][]float32, error) {

	costMatrix := make([][]float32, len(trackIndices))

	for row, trackIdx := range trackIndices {

		costMatrix[row] = make([]float32, len(detectionIndices))
		track := tracks[trackIdx]

		if track.TimeSinceUpdate() > 1 {
			for col := range costMatrix[row] {
				costMatrix[row][col] = InftyCost
			}
			continue
		}

		trackRect := track.GetRect()

		for col, detIdx := range detectionIndices {
			costMatrix[row][col] = 1 - trackRect.CalcIoU(detections[detIdx].Rect)
		}
	}

	return costMatrix, nil
}
