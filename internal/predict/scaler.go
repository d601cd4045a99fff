package predict

import (
	"fmt"

	"stock-forecaster/internal/types"
)

// Scaler is a per-column min-max transform onto [0, 1]. It is a plain value
// derived from a history; nothing caches it between predictions.
type Scaler struct {
	Min   []float64
	Scale []float64
}

// FitMinMax fits one min/scale pair per column. Constant columns get a unit
// range so transform and inverse never divide by zero.
func FitMinMax(matrix [][]float64) (Scaler, error) {
	if len(matrix) == 0 || len(matrix[0]) == 0 {
		return Scaler{}, fmt.Errorf("%w: cannot fit scaler on an empty matrix", types.ErrInsufficientData)
	}
	cols := len(matrix[0])
	lo := append([]float64(nil), matrix[0]...)
	hi := append([]float64(nil), matrix[0]...)
	for i, row := range matrix {
		if len(row) != cols {
			return Scaler{}, fmt.Errorf("%w: row %d has %d columns, want %d", types.ErrValidation, i, len(row), cols)
		}
		for j, v := range row {
			if v < lo[j] {
				lo[j] = v
			}
			if v > hi[j] {
				hi[j] = v
			}
		}
	}

	s := Scaler{Min: make([]float64, cols), Scale: make([]float64, cols)}
	for j := range lo {
		rng := hi[j] - lo[j]
		if rng == 0 {
			rng = 1
		}
		s.Scale[j] = 1 / rng
		s.Min[j] = -lo[j] * s.Scale[j]
	}
	return s, nil
}

func (s Scaler) Features() int { return len(s.Scale) }

// Transform maps a raw row into scaled space.
func (s Scaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.Scale[j] + s.Min[j]
	}
	return out
}

// Inverse maps a scaled row back to raw values.
func (s Scaler) Inverse(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Min[j]) / s.Scale[j]
	}
	return out
}

// TransformAll scales every row.
func (s Scaler) TransformAll(matrix [][]float64) [][]float64 {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		out[i] = s.Transform(row)
	}
	return out
}
