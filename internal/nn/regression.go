package nn

import (
	"github.com/born-ml/detloss/internal/tensor"
)

// smoothL1MinBeta is the beta below which smooth-L1 is plain L1, keeping the
// quadratic branch (which divides by beta) out of the graph entirely.
const smoothL1MinBeta = 1e-5

// HuberLoss is quadratic for |input-target| <= delta and linear beyond:
//
//	q = min(|e|, delta)
//	loss = 0.5·q² + delta·(|e| - q)
//
// weights (may be nil) scale each element and must broadcast to input.
// With sizeAverage the result is the mean, otherwise the sum.
func HuberLoss[B tensor.Backend](
	input, target *tensor.Tensor[float32, B],
	delta float32,
	weights *tensor.Tensor[float32, B],
	sizeAverage bool,
) *tensor.Tensor[float32, B] {
	absErr := input.Sub(target).Abs()
	quadratic := absErr.Minimum(tensor.Scalar(delta, input.Backend()))
	linear := absErr.Sub(quadratic)
	loss := quadratic.Square().MulScalar(0.5).Add(linear.MulScalar(delta))
	return reduceLoss(loss, weights, sizeAverage)
}

// SmoothL1Loss is 0.5·e²/beta for |e| < beta and |e| - beta/2 otherwise.
// A beta below 1e-5 gives plain L1.
func SmoothL1Loss[B tensor.Backend](
	input, target *tensor.Tensor[float32, B],
	beta float32,
	weights *tensor.Tensor[float32, B],
	sizeAverage bool,
) *tensor.Tensor[float32, B] {
	absErr := input.Sub(target).Abs()
	var loss *tensor.Tensor[float32, B]
	if beta < smoothL1MinBeta {
		loss = absErr
	} else {
		inside := tensor.Scalar(beta, input.Backend()).Greater(absErr)
		loss = tensor.Where(inside,
			absErr.Square().MulScalar(0.5/beta),
			absErr.SubScalar(0.5*beta))
	}
	return reduceLoss(loss, weights, sizeAverage)
}

func reduceLoss[B tensor.Backend](loss, weights *tensor.Tensor[float32, B], sizeAverage bool) *tensor.Tensor[float32, B] {
	if weights != nil {
		loss = loss.Mul(weights)
	}
	if sizeAverage {
		return loss.Mean()
	}
	return loss.Sum()
}
