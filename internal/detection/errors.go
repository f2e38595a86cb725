package detection

import (
	"errors"
	"fmt"

	"github.com/born-ml/detloss/internal/tensor"
)

// Common detection loss errors.
var (
	// ErrUnknownBoxLossType is returned for a box loss type outside
	// iou, giou, diou, eiou and huber.
	ErrUnknownBoxLossType = errors.New("unknown box loss type")

	// ErrInvalidConfig is returned when a config value is out of range.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrShapeMismatch is returned when the inputs of a call do not agree
	// with each other, the anchors or the config.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// ShapeError describes which input had an unexpected shape.
// It matches ErrShapeMismatch with errors.Is.
type ShapeError struct {
	Level int // -1 when the input is not per level
	Name  string
	Want  tensor.Shape
	Got   tensor.Shape
}

func (e *ShapeError) Error() string {
	if e.Level < 0 {
		return fmt.Sprintf("%s: %s: want %v, got %v", ErrShapeMismatch, e.Name, e.Want, e.Got)
	}
	return fmt.Sprintf("%s: level %d %s: want %v, got %v", ErrShapeMismatch, e.Level, e.Name, e.Want, e.Got)
}

// Is reports whether target is ErrShapeMismatch.
func (e *ShapeError) Is(target error) bool {
	return target == ErrShapeMismatch
}
