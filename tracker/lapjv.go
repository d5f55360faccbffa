package tracker

import (
	"errors"
)

// large cost used to initialise column potentials in the solver
const lapLarge = 1000000.0

// solveRectangular solves the rectangular minimum cost assignment problem
// for an RxC cost matrix using the LAPJV algorithm.  The matrix is embedded
// into an (R+C)x(R+C) square matrix so every real row and column can either
// take a real partner or fall through to a padding cell, giving a minimum
// total cost matching of size min(R,C) over the real block.
//
// rowSol[i] holds the column assigned to row i, or -1 when row i is
// unassigned.  colSol[j] is the reverse mapping.  Callers must not pass an
// empty matrix.
func solveRectangular(cost [][]float32) (rowSol, colSol []int, err error) {

	nRows := len(cost)

	if nRows == 0 || len(cost[0]) == 0 {
		return nil, nil, errors.New("cost matrix must not be empty")
	}

	nCols := len(cost[0])
	n := nRows + nCols

	// find the maximum entry so padding cells are never preferred over a
	// real pairing
	costMax := float64(cost[0][0])

	for i := range cost {
		for j := range cost[i] {
			if float64(cost[i][j]) > costMax {
				costMax = float64(cost[i][j])
			}
		}
	}

	// build the extended square matrix: real block top-left, padding
	// rows/columns at costMax+1, zero block bottom-right
	square := make([][]float64, n)

	for i := range square {
		square[i] = make([]float64, n)

		for j := range square[i] {
			switch {
			case i < nRows && j < nCols:
				square[i][j] = float64(cost[i][j])
			case i >= nRows && j >= nCols:
				square[i][j] = 0
			default:
				square[i][j] = costMax + 1
			}
		}
	}

	x := make([]int, n)
	y := make([]int, n)

	if err := lapjvDense(n, square, x, y); err != nil {
		return nil, nil, err
	}

	// map padding assignments back to "unassigned"
	rowSol = make([]int, nRows)
	colSol = make([]int, nCols)

	for i := 0; i < nRows; i++ {
		if x[i] >= nCols {
			rowSol[i] = -1
		} else {
			rowSol[i] = x[i]
		}
	}

	for j := 0; j < nCols; j++ {
		if y[j] >= nRows {
			colSol[j] = -1
		} else {
			colSol[j] = y[j]
		}
	}

	return rowSol, colSol, nil
}

// lapjvDense solves the dense square Linear Assignment Problem with the
// Jonker-Volgenant algorithm.  x and y receive the row and column solutions.
func lapjvDense(n int, cost [][]float64, x, y []int) error {

	freeRows := make([]int, n)
	v := make([]float64, n)

	nFree := reduceColumns(n, cost, freeRows, x, y, v)

	for i := 0; nFree > 0 && i < 2; i++ {
		nFree = reduceAugmentingRows(n, cost, nFree, freeRows, x, y, v)
	}

	if nFree > 0 {
		return augment(n, cost, nFree, freeRows, x, y, v)
	}

	return nil
}

// reduceColumns performs column reduction and reduction transfer, returning
// the number of rows left unassigned
func reduceColumns(n int, cost [][]float64, freeRows, x, y []int, v []float64) int {

	unique := make([]bool, n)

	for i := 0; i < n; i++ {
		x[i] = -1
		v[i] = lapLarge
		y[i] = 0
	}

	// each column potential becomes the smallest cost in the column, held
	// by the row that produced it
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if c := cost[i][j]; c < v[j] {
				v[j] = c
				y[j] = i
			}
		}
	}

	for i := 0; i < n; i++ {
		unique[i] = true
	}

	for j := n - 1; j >= 0; j-- {
		i := y[j]

		if x[i] < 0 {
			x[i] = j
		} else {
			unique[i] = false
			y[j] = -1
		}
	}

	nFreeRows := 0

	for i := 0; i < n; i++ {

		if x[i] < 0 {
			freeRows[nFreeRows] = i
			nFreeRows++

		} else if unique[i] {
			// transfer reduction for rows assigned to a single column
			j := x[i]
			minVal := lapLarge

			for j2 := 0; j2 < n; j2++ {
				if j2 == j {
					continue
				}

				if c := cost[i][j2] - v[j2]; c < minVal {
					minVal = c
				}
			}

			v[j] -= minVal
		}
	}

	return nFreeRows
}

// reduceAugmentingRows performs augmenting row reduction over the currently
// free rows, returning the number of rows still unassigned
func reduceAugmentingRows(n int, cost [][]float64, nFreeRows int, freeRows,
	x, y []int, v []float64) int {

	current := 0
	newFreeRows := 0
	rrCnt := 0

	for current < nFreeRows {

		rrCnt++
		freeI := freeRows[current]
		current++

		// find the two smallest reduced costs in this row
		j1 := 0
		v1 := cost[freeI][0] - v[0]
		j2 := -1
		v2 := lapLarge

		for j := 1; j < n; j++ {
			c := cost[freeI][j] - v[j]

			if c < v2 {
				if c >= v1 {
					v2 = c
					j2 = j
				} else {
					v2 = v1
					v1 = c
					j2 = j1
					j1 = j
				}
			}
		}

		i0 := y[j1]
		v1New := v[j1] - (v2 - v1)
		v1Lowers := v1New < v[j1]

		if rrCnt < current*n {
			if v1Lowers {
				v[j1] = v1New
			} else if i0 >= 0 && j2 >= 0 {
				j1 = j2
				i0 = y[j2]
			}

			if i0 >= 0 {
				if v1Lowers {
					current--
					freeRows[current] = i0
				} else {
					freeRows[newFreeRows] = i0
					newFreeRows++
				}
			}
		} else if i0 >= 0 {
			freeRows[newFreeRows] = i0
			newFreeRows++
		}

		x[freeI] = j1
		y[j1] = freeI
	}

	return newFreeRows
}

// findColumns locates the columns with minimum d[j] and moves them onto the
// SCAN list, returning the new hi bound
func findColumns(n, lo int, d []float64, cols, y []int) int {

	hi := lo + 1
	mind := d[cols[lo]]

	for k := hi; k < n; k++ {

		j := cols[k]

		if d[j] <= mind {
			if d[j] < mind {
				hi = lo
				mind = d[j]
			}

			cols[k] = cols[hi]
			cols[hi] = j
			hi++
		}
	}

	return hi
}

// scanColumns scans the TODO columns, trying to lower their path cost d via
// the columns currently on the SCAN list.  Returns an unassigned column when
// one becomes reachable at minimum cost, else -1.
func scanColumns(n int, cost [][]float64, lo, hi *int, d []float64,
	cols, pred, y []int, v []float64) int {

	for *lo != *hi {

		j := cols[*lo]
		*lo++
		i := y[j]
		mind := d[j]
		h := cost[i][j] - v[j] - mind

		for k := *hi; k < n; k++ {
			j = cols[k]
			cred := cost[i][j] - v[j] - h

			if cred < d[j] {
				d[j] = cred
				pred[j] = i

				if cred == mind {
					if y[j] < 0 {
						return j
					}

					cols[k] = cols[*hi]
					cols[*hi] = j
					(*hi)++
				}
			}
		}
	}

	return -1
}

// shortestPath runs one iteration of the modified Dijkstra shortest
// augmenting path search from row startI, returning the terminal column
func shortestPath(n int, cost [][]float64, startI int, y []int, v []float64,
	pred []int) int {

	lo := 0
	hi := 0
	finalJ := -1
	nReady := 0
	cols := make([]int, n)
	d := make([]float64, n)

	for i := 0; i < n; i++ {
		cols[i] = i
		pred[i] = startI
		d[i] = cost[startI][i] - v[i]
	}

	for finalJ == -1 {

		// no columns left on the SCAN list
		if lo == hi {
			nReady = lo
			hi = findColumns(n, lo, d, cols, y)

			for k := lo; k < hi; k++ {
				if j := cols[k]; y[j] < 0 {
					finalJ = j
				}
			}
		}

		if finalJ == -1 {
			finalJ = scanColumns(n, cost, &lo, &hi, d, cols, pred, y, v)
		}
	}

	// update column potentials for the columns taken off the heap
	mind := d[cols[lo]]

	for k := 0; k < nReady; k++ {
		j := cols[k]
		v[j] += d[j] - mind
	}

	return finalJ
}

// augment assigns the remaining free rows via shortest augmenting paths
func augment(n int, cost [][]float64, nFreeRows int, freeRows,
	x, y []int, v []float64) error {

	pred := make([]int, n)

	for _, freeI := range freeRows[:nFreeRows] {

		i := -1
		k := 0

		j := shortestPath(n, cost, freeI, y, v, pred)

		if j < 0 || j >= n {
			return errors.New("augmenting path ended on an invalid column")
		}

		// walk the path backwards, flipping assignments
		for i != freeI {

			i = pred[j]
			y[j] = i
			j, x[i] = x[i], j
			k++

			if k >= n {
				return errors.New("augmenting path exceeded matrix size")
			}
		}
	}

	return nil
}
