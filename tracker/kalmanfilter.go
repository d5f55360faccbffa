package tracker

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DetectBox represents a 1x4 matrix using a slice of float32
type DetectBox []float32

// StateMean represents a 1x8 matrix using a slice of float32
type StateMean []float32

// StateCov represents an 8x8 matrix
type StateCov struct {
	*mat.Dense
}

// StateHMean represents a 1x4 matrix using a slice of float32
type StateHMean []float32

// StateHCov represents a 4x4 matrix
type StateHCov struct {
	*mat.SymDense
}

// chiSquareInv95 holds the 0.95 quantile of the chi-square distribution
// indexed by degrees of freedom.  Gating distances above this value reject
// a track/detection pairing as physically implausible.
var chiSquareInv95 [5]float32

func init() {
	for dof := 1; dof <= 4; dof++ {
		dist := distuv.ChiSquared{K: float64(dof)}
		chiSquareInv95[dof] = float32(dist.Quantile(0.95))
	}
}

// KalmanFilter tracks a bounding box in image space with the 8 dimensional
// state (x, y, a, h, vx, vy, va, vh): center position, aspect ratio, height
// and their velocities under a constant velocity motion model
type KalmanFilter struct {
	stdWeightPosition float32
	stdWeightVelocity float32
	motionMat         *mat.Dense
	updateMat         *mat.Dense
}

// NewKalmanFilter initializes and returns a new KalmanFilter
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float32) *KalmanFilter {

	ndim := 4
	dt := float32(1.0)

	// constant velocity motion matrix
	motionMat := mat.NewDense(8, 8, nil)

	for i := 0; i < 8; i++ {
		motionMat.Set(i, i, float64(1.0))
	}

	for i := 0; i < ndim; i++ {
		motionMat.Set(i, ndim+i, float64(dt))
	}

	// updateMat projects state space to measurement space
	updateMat := mat.NewDense(4, 8, nil)

	for i := 0; i < 4; i++ {
		updateMat.Set(i, i, float64(1.0))
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motionMat:         motionMat,
		updateMat:         updateMat,
	}
}

// Initiate initializes the state mean and covariance from an unassociated
// measurement box
func (kf *KalmanFilter) Initiate(mean StateMean, covariance *StateCov,
	measurement DetectBox) {

	// position components come straight from the measurement, velocities
	// start at zero
	copy(mean[:4], measurement[:4])

	for i := 4; i < 8; i++ {
		mean[i] = 0.0
	}

	// uncertainty is scaled relative to the measured box height
	std := StateMean{
		2 * kf.stdWeightPosition * measurement[3],
		2 * kf.stdWeightPosition * measurement[3],
		1e-2,
		2 * kf.stdWeightPosition * measurement[3],
		10 * kf.stdWeightVelocity * measurement[3],
		10 * kf.stdWeightVelocity * measurement[3],
		1e-5,
		10 * kf.stdWeightVelocity * measurement[3],
	}

	for i := 0; i < 8; i++ {
		covariance.Set(i, i, float64(std[i]*std[i]))
	}
}

// Predict advances the state mean and covariance one time step
func (kf *KalmanFilter) Predict(mean StateMean, covariance *StateCov) {

	std := StateMean{
		kf.stdWeightPosition * mean[3],
		kf.stdWeightPosition * mean[3],
		1e-2,
		kf.stdWeightPosition * mean[3],
		kf.stdWeightVelocity * mean[3],
		kf.stdWeightVelocity * mean[3],
		1e-5,
		kf.stdWeightVelocity * mean[3],
	}

	// process noise covariance with variances on the diagonal
	motionCov := mat.NewDense(8, 8, nil)

	for i := 0; i < 8; i++ {
		motionCov.Set(i, i, float64(std[i]*std[i]))
	}

	// mean' = F * mean
	meanMat := mat.NewDense(8, 1, nil)

	for i := 0; i < 8; i++ {
		meanMat.Set(i, 0, float64(mean[i]))
	}

	meanMat.Mul(kf.motionMat, meanMat)

	for i := 0; i < 8; i++ {
		mean[i] = float32(meanMat.At(i, 0))
	}

	// cov' = F * cov * F^T + Q
	cov := covariance.Dense
	cov.Mul(kf.motionMat, cov)
	cov.Mul(cov, kf.motionMat.T())
	cov.Add(cov, motionCov)
}

// Update runs the Kalman filter correction step with a measurement box
func (kf *KalmanFilter) Update(mean StateMean, covariance *StateCov,
	measurement DetectBox) error {

	projectedMean, projectedCov := kf.project(mean, covariance)

	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// B = cov * H^T, the Kalman gain solves S * K^T = B^T
	B := mat.NewDense(8, 4, nil)
	B.Mul(covariance.Dense, kf.updateMat.T())

	var kalmanGain mat.Dense

	if err := chol.SolveTo(&kalmanGain, B.T()); err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	// innovation (measurement residual)
	innovation := make([]float64, 4)

	for i := 0; i < 4; i++ {
		innovation[i] = float64(measurement[i] - projectedMean[i])
	}

	// mean' = mean + K * innovation
	innovationVec := mat.NewVecDense(4, innovation)
	gainStep := mat.NewVecDense(8, nil)
	gainStep.MulVec(kalmanGain.T(), innovationVec)

	for i := 0; i < 8; i++ {
		mean[i] += float32(gainStep.AtVec(i))
	}

	// cov' = cov - K * S * K^T
	temp := mat.NewDense(8, 4, nil)
	temp.Mul(kalmanGain.T(), projectedCov)

	temp2 := mat.NewDense(8, 8, nil)
	temp2.Mul(temp, &kalmanGain)

	newCov := mat.NewDense(8, 8, nil)
	newCov.Sub(covariance.Dense, temp2)

	covariance.Dense = newCov

	return nil
}

// GatingDistance computes the squared Mahalanobis distance between the
// state distribution and each measurement box.  With onlyPosition set the
// distance is computed over the (x, y) center alone, 2 degrees of freedom,
// otherwise over the full (x, y, a, h) box state, 4 degrees of freedom.
func (kf *KalmanFilter) GatingDistance(mean StateMean, covariance *StateCov,
	measurements []DetectBox, onlyPosition bool) ([]float32, error) {

	projectedMean, projectedCov := kf.project(mean, covariance)

	dims := 4

	if onlyPosition {
		dims = 2
	}

	// reduce to the leading position block when gating on position only
	gateCov := mat.NewSymDense(dims, nil)

	for i := 0; i < dims; i++ {
		for j := i; j < dims; j++ {
			gateCov.SetSym(i, j, projectedCov.At(i, j))
		}
	}

	chol := mat.Cholesky{}

	if ok := chol.Factorize(gateCov); !ok {
		return nil, errors.New("failed to factorize gating covariance")
	}

	distances := make([]float32, len(measurements))
	residual := mat.NewVecDense(dims, nil)
	solved := mat.NewVecDense(dims, nil)

	for m, measurement := range measurements {

		if len(measurement) < dims {
			return nil, fmt.Errorf("measurement %d has %d components, want %d",
				m, len(measurement), dims)
		}

		for i := 0; i < dims; i++ {
			residual.SetVec(i, float64(measurement[i]-projectedMean[i]))
		}

		// squared distance = residual^T * S^-1 * residual
		if err := chol.SolveVecTo(solved, residual); err != nil {
			return nil, fmt.Errorf("failed to solve gating system: %w", err)
		}

		distances[m] = float32(mat.Dot(residual, solved))
	}

	return distances, nil
}

// project projects the state mean and covariance to measurement space
func (kf *KalmanFilter) project(mean StateMean,
	covariance *StateCov) (StateHMean, *StateHCov) {

	// measurement noise standard deviations
	std := DetectBox{
		kf.stdWeightPosition * mean[3],
		kf.stdWeightPosition * mean[3],
		1e-1,
		kf.stdWeightPosition * mean[3],
	}

	innovationCov := mat.NewSymDense(4, nil)

	for i := 0; i < 4; i++ {
		innovationCov.SetSym(i, i, float64(std[i]*std[i]))
	}

	// project the state mean to measurement space
	meanData := make([]float64, 8)

	for i, v := range mean {
		meanData[i] = float64(v)
	}

	projectedMeanVec := mat.NewVecDense(4, nil)
	projectedMeanVec.MulVec(kf.updateMat, mat.NewVecDense(8, meanData))

	// project the state covariance: H * cov * H^T + R
	temp := mat.NewDense(4, 8, nil)
	temp.Mul(kf.updateMat, covariance.Dense)
	temp2 := mat.NewDense(4, 4, nil)
	temp2.Mul(temp, kf.updateMat.T())

	projectedCov := mat.NewSymDense(4, nil)

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			projectedCov.SetSym(i, j, temp2.At(i, j))
		}
	}

	projectedCov.AddSym(projectedCov, innovationCov)

	projectedMean := make(StateHMean, 4)

	for i := 0; i < 4; i++ {
		projectedMean[i] = float32(projectedMeanVec.AtVec(i))
	}

	return projectedMean, &StateHCov{projectedCov}
}
