package tensor

// Backend is the set of primitive operations a compute backend implements.
//
// Every operation returns a freshly allocated tensor and leaves its inputs
// untouched. Binary operations and Where broadcast NumPy style.
// Scalar arguments are float32 or int32 and must match the tensor dtype.
//
// Implementations panic on programmer errors such as incompatible shapes or
// unsupported dtypes; the packages above validate before calling.
type Backend interface {
	// Element-wise arithmetic (float32, int32).
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor
	Minimum(a, b *RawTensor) *RawTensor
	Maximum(a, b *RawTensor) *RawTensor

	// Scalar arithmetic.
	AddScalar(x *RawTensor, scalar any) *RawTensor
	SubScalar(x *RawTensor, scalar any) *RawTensor
	MulScalar(x *RawTensor, scalar any) *RawTensor
	DivScalar(x *RawTensor, scalar any) *RawTensor

	// Float32 math.
	Neg(x *RawTensor) *RawTensor
	Abs(x *RawTensor) *RawTensor
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor
	Log1p(x *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor
	PowScalar(x *RawTensor, exponent float32) *RawTensor

	// Comparisons produce Bool tensors.
	Greater(a, b *RawTensor) *RawTensor
	Equal(a, b *RawTensor) *RawTensor
	NotEqual(a, b *RawTensor) *RawTensor
	And(a, b *RawTensor) *RawTensor
	Not(x *RawTensor) *RawTensor

	// Reductions.
	Sum(x *RawTensor) *RawTensor
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Shape manipulation.
	Reshape(x *RawTensor, shape Shape) *RawTensor
	Transpose(x *RawTensor, axes ...int) *RawTensor
	Cat(tensors []*RawTensor, dim int) *RawTensor
	Narrow(x *RawTensor, dim, start, length int) *RawTensor

	// Selection.
	Where(condition, x, y *RawTensor) *RawTensor
	IndexSelect(x *RawTensor, dim int, indices *RawTensor) *RawTensor

	Cast(x *RawTensor, dtype DataType) *RawTensor

	Name() string
	Device() Device
}
