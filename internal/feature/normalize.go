package feature

import "gonum.org/v1/gonum/blas/gonum"

var blas = gonum.Implementation{}

// Normalize scales v to unit L2 norm in place. Zero vectors are left unchanged.
func Normalize(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}
	norm := blas.Snrm2(len(v), v, 1)
	if norm == 0 {
		return v
	}
	blas.Sscal(len(v), 1/norm, v, 1)
	return v
}
