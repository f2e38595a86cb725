package autodiff

import (
	"fmt"

	"github.com/born-ml/detloss/internal/tensor"
)

// BackwardCapable is a backend that can compute gradients.
// AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	// GetTape returns the gradient tape for backward computation.
	GetTape() *GradientTape
}

// GetTape returns the gradient tape (implements BackwardCapable).
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// IsRecording reports whether backend records gradients right now.
// Backends without a tape never do.
func IsRecording(backend tensor.Backend) bool {
	bc, ok := backend.(BackwardCapable)
	return ok && bc.GetTape().IsRecording()
}

// Backward computes d(sum(t))/dx for every tensor x that t depends on.
// For a scalar loss that is the ordinary gradient.
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := ...
//	grads := autodiff.Backward(loss, backend)
//	grads[param.Raw()]
func Backward[B BackwardCapable](t *tensor.Tensor[float32, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.GetTape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}

	seed, err := tensor.NewRaw(t.Shape(), tensor.Float32, backend.Device())
	if err != nil {
		panic(fmt.Sprintf("backward: failed to create output gradient: %v", err))
	}
	ones := seed.AsFloat32()
	for i := range ones {
		ones[i] = 1
	}
	return tape.Backward(t.Raw(), seed, backend)
}
