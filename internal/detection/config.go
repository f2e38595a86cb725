package detection

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/detloss/internal/nn"
)

// BoxLossType selects the box regression loss.
type BoxLossType string

// Supported box loss types.
const (
	BoxLossIoU   BoxLossType = "iou"   // 1 - IoU
	BoxLossGIoU  BoxLossType = "giou"  // 1 - IoU + enclosing area penalty
	BoxLossDIoU  BoxLossType = "diou"  // 1 - IoU + center distance penalty
	BoxLossEIoU  BoxLossType = "eiou"  // DIoU plus width and height penalties
	BoxLossHuber BoxLossType = "huber" // Huber on raw offsets, no decoding
)

// ParseBoxLossType parses a case-insensitive box loss type name.
func ParseBoxLossType(s string) (BoxLossType, error) {
	switch t := BoxLossType(strings.ToLower(strings.TrimSpace(s))); t {
	case BoxLossIoU, BoxLossGIoU, BoxLossDIoU, BoxLossEIoU, BoxLossHuber:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBoxLossType, s)
	}
}

// UnmarshalYAML rejects unknown box loss types while decoding.
func (t *BoxLossType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseBoxLossType(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*t = parsed
	return nil
}

// usesIoU reports whether the type decodes boxes and compares overlaps.
func (t BoxLossType) usesIoU() bool {
	return t != BoxLossHuber
}

// Config holds the detection loss hyper-parameters.
type Config struct {
	NumClasses      int         `yaml:"num_classes"`
	Alpha           float32     `yaml:"alpha"`
	Gamma           float32     `yaml:"gamma"`
	Delta           float32     `yaml:"delta"` // huber only
	BoxLossWeight   float32     `yaml:"box_loss_weight"`
	BoxLossType     BoxLossType `yaml:"box_loss_type"`
	LabelSmoothing  float32     `yaml:"label_smoothing"`
	LegacyFocal     bool        `yaml:"legacy_focal"`
	UseCompiledPath bool        `yaml:"use_compiled_path"`

	// NumLevels fixes the number of pyramid levels. 0 accepts any count.
	NumLevels int `yaml:"num_levels"`

	// ChannelsFirst means head outputs are [batch, channels, H, W].
	// Targets are always channels-last.
	ChannelsFirst bool `yaml:"channels_first"`
}

// DefaultConfig returns the EfficientDet defaults for COCO.
func DefaultConfig() Config {
	return Config{
		NumClasses:    90,
		Alpha:         0.25,
		Gamma:         1.5,
		Delta:         0.1,
		BoxLossWeight: 50,
		BoxLossType:   BoxLossGIoU,
	}
}

// Validate checks every field against its allowed range.
func (c Config) Validate() error {
	if _, err := ParseBoxLossType(string(c.BoxLossType)); err != nil {
		return err
	}
	switch {
	case c.NumClasses < 1:
		return fmt.Errorf("%w: num_classes must be positive, got %d", ErrInvalidConfig, c.NumClasses)
	case c.Alpha < 0 || c.Alpha > 1:
		return fmt.Errorf("%w: alpha must be in [0, 1], got %g", ErrInvalidConfig, c.Alpha)
	case c.Gamma < 0:
		return fmt.Errorf("%w: gamma must be non-negative, got %g", ErrInvalidConfig, c.Gamma)
	case c.BoxLossWeight < 0:
		return fmt.Errorf("%w: box_loss_weight must be non-negative, got %g", ErrInvalidConfig, c.BoxLossWeight)
	case c.LabelSmoothing < 0 || c.LabelSmoothing >= 1:
		return fmt.Errorf("%w: label_smoothing must be in [0, 1), got %g", ErrInvalidConfig, c.LabelSmoothing)
	case c.BoxLossType == BoxLossHuber && c.Delta <= 0:
		return fmt.Errorf("%w: delta must be positive for huber, got %g", ErrInvalidConfig, c.Delta)
	case c.NumLevels < 0:
		return fmt.Errorf("%w: num_levels must be non-negative, got %d", ErrInvalidConfig, c.NumLevels)
	}
	return nil
}

// Focal returns the focal loss settings of the config.
func (c Config) Focal() nn.FocalConfig {
	return nn.FocalConfig{
		Alpha:          c.Alpha,
		Gamma:          c.Gamma,
		LabelSmoothing: c.LabelSmoothing,
		Legacy:         c.LegacyFocal,
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
// Keys missing from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the caller
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
