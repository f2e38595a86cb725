package autodiff

// NumericGradient estimates df/dx_i by central differences.
//
// f must read x (directly or through a tensor sharing its buffer) and must
// not record on a tape. x is perturbed in place and restored before return.
func NumericGradient(f func() float32, x []float32, eps float32) []float32 {
	grad := make([]float32, len(x))
	for i := range x {
		orig := x[i]
		x[i] = orig + eps
		plus := float64(f())
		x[i] = orig - eps
		minus := float64(f())
		x[i] = orig
		grad[i] = float32((plus - minus) / (2 * float64(eps)))
	}
	return grad
}
