package tracker

import (
	"testing"
)

func runLapjvTest(t *testing.T, costMatrix [][]float64, expectedX, expectedY []int) {

	n := len(costMatrix)
	x := make([]int, n)
	y := make([]int, n)

	if err := lapjvDense(n, costMatrix, x, y); err != nil {
		t.Errorf("lapjvDense returned an error: %v", err)
	}

	for i := 0; i < n; i++ {
		if x[i] != expectedX[i] {
			t.Errorf("Expected x[%d] = %d, but got %d", i, expectedX[i], x[i])
		}
		if y[i] != expectedY[i] {
			t.Errorf("Expected y[%d] = %d, but got %d", i, expectedY[i], y[i])
		}
	}
}

func TestLapjvDense(t *testing.T) {

	costMatrix1 := [][]float64{
		{4, 1, 3, 2},
		{2, 0, 5, 3},
		{3, 2, 2, 3},
		{2, 3, 3, 2},
	}

	expectedX1 := []int{3, 1, 2, 0}
	expectedY1 := []int{3, 1, 2, 0}

	costMatrix2 := [][]float64{
		{10, 19, 8, 15},
		{10, 18, 7, 17},
		{13, 16, 9, 14},
		{12, 19, 8, 18},
	}

	expectedX2 := []int{3, 0, 1, 2}
	expectedY2 := []int{1, 2, 3, 0}

	t.Run("Test Case 1", func(t *testing.T) {
		runLapjvTest(t, costMatrix1, expectedX1, expectedY1)
	})

	t.Run("Test Case 2", func(t *testing.T) {
		runLapjvTest(t, costMatrix2, expectedX2, expectedY2)
	})
}

// bruteForceCost finds the minimum total cost over all one-to-one matchings
// of size min(R,C) by exhaustive search
func bruteForceCost(cost [][]float32) float32 {

	nRows := len(cost)
	nCols := len(cost[0])

	var best float32 = -1

	usedCols := make([]bool, nCols)

	var search func(row int, matched int, total float32)
	search = func(row, matched int, total float32) {

		want := nRows
		if nCols < nRows {
			want = nCols
		}

		if matched == want {
			if best < 0 || total < best {
				best = total
			}
			return
		}

		if row == nRows {
			return
		}

		// leave this row unmatched only if enough rows remain
		if nRows-row-1 >= want-matched {
			search(row+1, matched, total)
		}

		for col := 0; col < nCols; col++ {
			if !usedCols[col] {
				usedCols[col] = true
				search(row+1, matched+1, total+cost[row][col])
				usedCols[col] = false
			}
		}
	}

	search(0, 0, 0)

	return best
}

func TestSolveRectangular(t *testing.T) {

	cases := [][][]float32{
		{
			{4, 1, 3},
			{2, 0, 5},
		},
		{
			{10, 19},
			{10, 18},
			{13, 16},
		},
		{
			{1, 2, 3, 4},
			{4, 3, 2, 1},
			{2, 4, 1, 3},
		},
	}

	for ci, cost := range cases {

		rowSol, colSol, err := solveRectangular(cost)

		if err != nil {
			t.Fatalf("case %d: solveRectangular returned error: %v", ci, err)
		}

		nRows := len(cost)
		nCols := len(cost[0])
		want := nRows

		if nCols < nRows {
			want = nCols
		}

		// validity: one-to-one partial matching of size min(R,C)
		size := 0
		colSeen := make([]bool, nCols)

		for row, col := range rowSol {

			if col < 0 {
				continue
			}

			size++

			if colSeen[col] {
				t.Errorf("case %d: column %d assigned twice", ci, col)
			}

			colSeen[col] = true

			if colSol[col] != row {
				t.Errorf("case %d: colSol[%d] = %d, want %d", ci, col, colSol[col], row)
			}
		}

		if size != want {
			t.Errorf("case %d: matching size %d, want %d", ci, size, want)
		}

		// optimality against brute force
		var total float32

		for row, col := range rowSol {
			if col >= 0 {
				total += cost[row][col]
			}
		}

		if bf := bruteForceCost(cost); total > bf+1e-5 {
			t.Errorf("case %d: total cost %f exceeds optimum %f", ci, total, bf)
		}
	}
}

func TestSolveRectangularEmpty(t *testing.T) {

	if _, _, err := solveRectangular(nil); err == nil {
		t.Errorf("expected error for empty cost matrix")
	}
}
