package nn

import (
	"github.com/chewxy/math32"

	"github.com/born-ml/detloss/internal/tensor"
)

// FocalConfig holds the focal loss hyper-parameters.
type FocalConfig struct {
	// Alpha weights positives; negatives get 1-Alpha. In [0, 1].
	Alpha float32
	// Gamma is the focusing exponent. 0 gives weighted cross-entropy.
	Gamma float32
	// LabelSmoothing softens targets toward 0.5 for the cross-entropy term
	// only. Ignored by the legacy formulation.
	LabelSmoothing float32
	// Legacy selects the log-space modulator formulation.
	Legacy bool
}

// FocalLoss computes per-element focal loss on sigmoid logits.
//
// Two formulations are available. They agree when LabelSmoothing is 0.
//
// Legacy:
//
//	ce        = BCEWithLogits(x, t)
//	modulator = exp(γ·t·(-x) - γ·softplus(-x))
//	loss      = (t == 1 ? α : 1-α) · modulator · ce / normalizer
//
// Smoothed:
//
//	p   = σ(x)
//	p_t = t·p + (1-t)·(1-p)
//	α_t = t·α + (1-t)·(1-α)
//	t'  = t·(1-s) + s/2
//	loss = α_t · (1-p_t)^γ · BCEWithLogits(x, t') / normalizer
//
// Results are unreduced and keep the logits shape.
type FocalLoss[B tensor.Backend] struct {
	cfg FocalConfig
}

// NewFocalLoss creates a focal loss with the given configuration.
func NewFocalLoss[B tensor.Backend](cfg FocalConfig) *FocalLoss[B] {
	return &FocalLoss[B]{cfg: cfg}
}

// Config returns the loss configuration.
func (f *FocalLoss[B]) Config() FocalConfig {
	return f.cfg
}

// Forward computes the focal loss of logits against 0/1 targets of the same
// shape, divided by normalizer (a positive tensor broadcastable to logits,
// typically a 0-d scalar).
func (f *FocalLoss[B]) Forward(logits, targets, normalizer *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if f.cfg.Legacy {
		return LegacyFocalLoss(logits, targets, normalizer, f.cfg.Alpha, f.cfg.Gamma)
	}
	return SmoothedFocalLoss(logits, targets, normalizer, f.cfg.Alpha, f.cfg.Gamma, f.cfg.LabelSmoothing)
}

// LegacyFocalLoss is the log-space formulation of focal loss.
func LegacyFocalLoss[B tensor.Backend](
	logits, targets, normalizer *tensor.Tensor[float32, B],
	alpha, gamma float32,
) *tensor.Tensor[float32, B] {
	backend := logits.Backend()

	ce := BCEWithLogits(logits, targets)
	negLogits := logits.Neg()
	modulator := targets.Mul(negLogits).MulScalar(gamma).
		Sub(Softplus(negLogits).MulScalar(gamma)).
		Exp()
	loss := modulator.Mul(ce)

	positive := targets.Equal(tensor.Scalar[float32](1, backend))
	weighted := tensor.Where(positive, loss.MulScalar(alpha), loss.MulScalar(1-alpha))
	return weighted.Div(normalizer)
}

// SmoothedFocalLoss is the probability-space formulation with optional
// label smoothing.
func SmoothedFocalLoss[B tensor.Backend](
	logits, targets, normalizer *tensor.Tensor[float32, B],
	alpha, gamma, smoothing float32,
) *tensor.Tensor[float32, B] {
	p := logits.Sigmoid()
	negatives := targets.RSub(1)

	pt := targets.Mul(p).Add(negatives.Mul(p.RSub(1)))
	alphaFactor := targets.MulScalar(alpha).Add(negatives.MulScalar(1 - alpha))
	modulator := pt.RSub(1).PowScalar(gamma)

	ceTargets := targets
	if smoothing > 0 {
		ceTargets = targets.MulScalar(1 - smoothing).AddScalar(0.5 * smoothing)
	}
	ce := BCEWithLogits(logits, ceTargets)

	return alphaFactor.Mul(modulator).Mul(ce).Div(normalizer)
}

// Term returns the focal loss of a single logit x with target t before
// normalization. It follows the same formulas as Forward and is used by
// fused kernels that work on raw buffers.
func (cfg FocalConfig) Term(x, t float32) float32 {
	if cfg.Legacy {
		ce := bceScalar(x, t)
		modulator := math32.Exp(cfg.Gamma*t*(-x) - cfg.Gamma*softplusScalar(-x))
		loss := modulator * ce
		if t == 1 {
			return cfg.Alpha * loss
		}
		return (1 - cfg.Alpha) * loss
	}

	p := sigmoidScalar(x)
	pt := t*p + (1-t)*(1-p)
	alphaFactor := t*cfg.Alpha + (1-t)*(1-cfg.Alpha)
	modulator := powScalar(1-pt, cfg.Gamma)
	ceTarget := t
	if cfg.LabelSmoothing > 0 {
		ceTarget = t*(1-cfg.LabelSmoothing) + 0.5*cfg.LabelSmoothing
	}
	return alphaFactor * modulator * bceScalar(x, ceTarget)
}

func bceScalar(x, t float32) float32 {
	return max(x, 0) - x*t + math32.Log1p(math32.Exp(-math32.Abs(x)))
}

func softplusScalar(x float32) float32 {
	return max(x, 0) + math32.Log1p(math32.Exp(-math32.Abs(x)))
}

func sigmoidScalar(x float32) float32 {
	if x >= 0 {
		return 1 / (1 + math32.Exp(-x))
	}
	e := math32.Exp(x)
	return e / (1 + e)
}

func powScalar(x, p float32) float32 {
	switch p {
	case 0:
		return 1
	case 1:
		return x
	case 2:
		return x * x
	}
	return math32.Pow(x, p)
}
