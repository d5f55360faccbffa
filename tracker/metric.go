package tracker

import (
	"github.com/KoKoLates/flowers-tracker/reid"
)

// DistanceMethod defines the appearance distance calculation method
type DistanceMethod int

const (
	Euclidean DistanceMethod = 1
	Cosine    DistanceMethod = 2
)

// NearestNeighborMetric measures the appearance distance between detections
// and known track identities.  For each target it keeps a gallery of the
// most recent embedding samples, and the distance to a target is the
// smallest distance from any of its gallery samples to the query feature.
type NearestNeighborMetric struct {
	// method is the distance calculation applied between feature vectors
	method DistanceMethod
	// matchingThreshold is the gating threshold for this metric; larger
	// distances are considered an invalid association
	matchingThreshold float32
	// budget is the maximum number of gallery samples kept per target,
	// 0 means unbounded
	budget int
	// samples maps a target ID to its gallery of embedding vectors
	samples map[int][][]float32
}

// NewNearestNeighborMetric returns a metric using the given distance
// method, matching threshold and per-target gallery budget
func NewNearestNeighborMetric(method DistanceMethod, matchingThreshold float32,
	budget int) *NearestNeighborMetric {

	return &NearestNeighborMetric{
		method:            method,
		matchingThreshold: matchingThreshold,
		budget:            budget,
		samples:           make(map[int][][]float32),
	}
}

// MatchingThreshold returns the gating threshold of the metric
func (m *NearestNeighborMetric) MatchingThreshold() float32 {
	return m.matchingThreshold
}

// NumSamples returns the gallery size for a target
func (m *NearestNeighborMetric) NumSamples(target int) int {
	return len(m.samples[target])
}

// Distance computes the cost matrix between targets and features, with one
// row per target and one column per feature.  Targets without gallery
// samples yield InftyCost.
func (m *NearestNeighborMetric) Distance(features [][]float32,
	targets []int) [][]float32 {

	costMatrix := make([][]float32, len(targets))

	for row, target := range targets {

		costMatrix[row] = make([]float32, len(features))
		gallery := m.samples[target]

		for col, feature := range features {
			costMatrix[row][col] = m.nearestDistance(gallery, feature)
		}
	}

	return costMatrix
}

// PartialFit folds new feature samples into the gallery and prunes targets
// that are no longer active.  features[i] belongs to targets[i].
func (m *NearestNeighborMetric) PartialFit(features [][]float32, targets []int,
	activeTargets []int) {

	for i, target := range targets {

		gallery := append(m.samples[target], features[i])

		// evict the oldest samples beyond the budget
		if m.budget > 0 && len(gallery) > m.budget {
			gallery = gallery[len(gallery)-m.budget:]
		}

		m.samples[target] = gallery
	}

	active := make(map[int]bool, len(activeTargets))

	for _, target := range activeTargets {
		active[target] = true
	}

	for target := range m.samples {
		if !active[target] {
			delete(m.samples, target)
		}
	}
}

// nearestDistance returns the smallest distance from any gallery sample to
// the feature
func (m *NearestNeighborMetric) nearestDistance(gallery [][]float32,
	feature []float32) float32 {

	if len(gallery) == 0 {
		return InftyCost
	}

	best := InftyCost

	switch m.method {
	case Cosine:
		query := reid.NormalizeVec(feature)

		for _, sample := range gallery {
			d := reid.CosineDistance(reid.NormalizeVec(sample), query)

			if d < best {
				best = d
			}
		}

	case Euclidean:
		for _, sample := range gallery {
			d := reid.EuclideanDistance(sample, feature)

			if d < best {
				best = d
			}
		}
	}

	return best
}
