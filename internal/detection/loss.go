// Package detection computes the EfficientDet training loss: focal loss on
// per-anchor class logits plus an IoU-family loss on decoded boxes,
// normalized by the number of positive anchors in the batch.
//
//	loss, err := detection.New(cfg, anchorBoxes, backend)
//	res, err := loss.Forward(levels, numPositives)
//	res.Total // res.Cls + cfg.BoxLossWeight·res.Box
//
// Every step is written against tensor.Backend, so on an autodiff backend
// the total loss can be differentiated with respect to the head outputs.
package detection

import (
	"fmt"
	"sync"

	"github.com/cyclopcam/logs"

	"github.com/born-ml/detloss/internal/anchors"
	"github.com/born-ml/detloss/internal/autodiff"
	"github.com/born-ml/detloss/internal/nn"
	"github.com/born-ml/detloss/internal/parallel"
	"github.com/born-ml/detloss/internal/tensor"
)

// Result holds the three loss scalars of one call as 0-d tensors.
type Result[B tensor.Backend] struct {
	Total *tensor.Tensor[float32, B]
	Cls   *tensor.Tensor[float32, B]
	Box   *tensor.Tensor[float32, B]
}

// strategy computes the summed class loss and the box loss of a validated
// batch. Implementations must agree within float32 tolerance.
type strategy[B tensor.Backend] interface {
	name() string
	forward(in *batchInput[B]) (cls, box *tensor.Tensor[float32, B], err error)
}

type options struct {
	log      logs.Log
	decoder  any
	parallel parallel.Config
}

// Option configures a Loss.
type Option func(*options)

// WithLog sets the logger. Without it the loss is silent.
func WithLog(log logs.Log) Option {
	return func(o *options) { o.log = log }
}

// WithDecoder replaces the default EfficientDet box coder.
func WithDecoder[B tensor.Backend](decoder BoxDecoder[B]) Option {
	return func(o *options) { o.decoder = decoder }
}

// WithParallel sets how the compiled path splits work across goroutines.
func WithParallel(cfg parallel.Config) Option {
	return func(o *options) { o.parallel = cfg }
}

// Loss computes the detection loss for a fixed config and anchor set.
// It holds no per-call state.
type Loss[B tensor.Backend] struct {
	cfg     Config
	anchors *tensor.Tensor[float32, B]
	backend B
	decoder BoxDecoder[B]
	log     logs.Log

	eager strategy[B]
	fused strategy[B] // nil unless the compiled path is usable

	fallback sync.Once
}

// New validates cfg and creates a loss over the [N, 4] anchors.
func New[B tensor.Backend](cfg Config, anchorBoxes *tensor.Tensor[float32, B], backend B, opts ...Option) (*Loss[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if anchorBoxes == nil {
		return nil, fmt.Errorf("%w: nil anchors", ErrShapeMismatch)
	}
	if shape := anchorBoxes.Shape(); len(shape) != 2 || shape[1] != 4 {
		return nil, &ShapeError{Level: -1, Name: "anchors", Want: tensor.Shape{-1, 4}, Got: shape}
	}

	o := options{parallel: parallel.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	var decoder BoxDecoder[B] = anchors.NewCoder[B]()
	if o.decoder != nil {
		d, ok := o.decoder.(BoxDecoder[B])
		if !ok {
			return nil, fmt.Errorf("%w: decoder %T does not work on backend %s", ErrInvalidConfig, o.decoder, backend.Name())
		}
		decoder = d
	}

	l := &Loss[B]{
		cfg:     cfg,
		anchors: anchorBoxes,
		backend: backend,
		decoder: decoder,
		log:     o.log,
		eager: &eagerStrategy[B]{
			cfg:     cfg,
			focal:   nn.NewFocalLoss[B](cfg.Focal()),
			anchors: anchorBoxes,
			decoder: decoder,
		},
	}

	if cfg.UseCompiledPath {
		if rows, ok := decoder.(RowDecoder); ok {
			l.fused = &fusedStrategy[B]{
				cfg:      cfg,
				focal:    cfg.Focal(),
				anchors:  anchorBoxes.Data(),
				decoder:  rows,
				parallel: o.parallel,
				backend:  backend,
			}
		} else {
			l.warnf("decoder %T cannot decode single rows, using the eager path", decoder)
		}
	}

	l.infof("detection loss: %s path, %d classes, box loss %s (weight %g), %d anchors",
		l.Path(), cfg.NumClasses, cfg.BoxLossType, cfg.BoxLossWeight, anchorBoxes.Shape()[0])
	return l, nil
}

// Config returns the loss configuration.
func (l *Loss[B]) Config() Config {
	return l.cfg
}

// Path names the execution path Forward would take now: "compiled" or
// "eager". The compiled path is skipped while the backend records
// gradients.
func (l *Loss[B]) Path() string {
	return l.strategy().name()
}

// Forward computes the loss of one batch. levels are ordered from the
// highest resolution, matching the order of the anchors; numPositives has
// one count per image.
//
// The normalizer is sum(numPositives)+1, so a batch without positives is
// still well defined.
func (l *Loss[B]) Forward(levels []Level[B], numPositives *tensor.Tensor[float32, B]) (Result[B], error) {
	in, err := l.prepare(levels, numPositives)
	if err != nil {
		return Result[B]{}, err
	}

	cls, box, err := l.strategy().forward(in)
	if err != nil {
		return Result[B]{}, err
	}
	total := cls.Add(box.MulScalar(l.cfg.BoxLossWeight))
	return Result[B]{Total: total, Cls: cls, Box: box}, nil
}

func (l *Loss[B]) strategy() strategy[B] {
	if l.fused == nil {
		return l.eager
	}
	if autodiff.IsRecording(l.backend) {
		l.fallback.Do(func() {
			l.warnf("compiled path cannot record gradients, using the eager path while the tape records")
		})
		return l.eager
	}
	return l.fused
}

func (l *Loss[B]) infof(format string, args ...any) {
	if l.log != nil {
		l.log.Infof(format, args...)
	}
}

func (l *Loss[B]) warnf(format string, args ...any) {
	if l.log != nil {
		l.log.Warnf(format, args...)
	}
}
