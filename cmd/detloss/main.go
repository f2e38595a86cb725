// Package main is the detloss command line tool. It evaluates the detection
// loss on synthetic batches, compares the eager and compiled paths, and fits
// head outputs to their targets by gradient descent.
package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"

	"github.com/born-ml/detloss/internal/anchors"
	"github.com/born-ml/detloss/internal/autodiff"
	"github.com/born-ml/detloss/internal/backend/cpu"
	"github.com/born-ml/detloss/internal/detection"
	"github.com/born-ml/detloss/internal/nn"
	"github.com/born-ml/detloss/internal/optim"
	"github.com/born-ml/detloss/internal/synth"
)

const version = "v0.1.0"

type options struct {
	configPath    string
	batch         int
	imageSize     int
	minLevel      int
	maxLevel      int
	numClasses    int
	boxes         int
	seed          uint64
	compiled      bool
	channelsFirst bool
	noise         float32
}

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("detloss", "EfficientDet detection loss")
	configPath := parser.String("c", "config", &argparse.Options{Help: "YAML loss config file"})
	batch := parser.Int("b", "batch", &argparse.Options{Help: "Images per batch", Default: 2})
	imageSize := parser.Int("s", "size", &argparse.Options{Help: "Square image size in pixels", Default: 128})
	minLevel := parser.Int("", "min-level", &argparse.Options{Help: "First pyramid level", Default: 3})
	maxLevel := parser.Int("", "max-level", &argparse.Options{Help: "Last pyramid level", Default: 5})
	numClasses := parser.Int("n", "classes", &argparse.Options{Help: "Number of classes (0 keeps the config value)", Default: 0})
	boxes := parser.Int("", "boxes", &argparse.Options{Help: "Ground truth boxes per image", Default: 3})
	seed := parser.Int("", "seed", &argparse.Options{Help: "Random seed", Default: 1})
	compiled := parser.Flag("", "compiled", &argparse.Options{Help: "Use the compiled loss path"})
	channelsFirst := parser.Flag("", "channels-first", &argparse.Options{Help: "Feed head outputs as [batch, C, H, W]"})
	noise := parser.Float("", "noise", &argparse.Options{Help: "Std dev of box outputs around their targets", Default: 0.1})

	computeCmd := parser.NewCommand("compute", "Evaluate the loss on one synthetic batch")
	compareCmd := parser.NewCommand("compare", "Compare the eager and compiled paths on one synthetic batch")
	fitCmd := parser.NewCommand("fit", "Fit head outputs to a synthetic batch")
	steps := fitCmd.Int("", "steps", &argparse.Options{Help: "Optimizer steps", Default: 50})
	lr := fitCmd.Float("", "lr", &argparse.Options{Help: "Learning rate", Default: 0.05})
	optimizer := fitCmd.Selector("", "optimizer", []string{"sgd", "adam"}, &argparse.Options{Help: "Optimizer", Default: "adam"})
	versionCmd := parser.NewCommand("version", "Show version")

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	if versionCmd.Happened() {
		fmt.Printf("detloss %s\n", version)
		return
	}

	logger, err := logs.NewLog()
	check(err)

	opts := options{
		configPath:    *configPath,
		batch:         *batch,
		imageSize:     *imageSize,
		minLevel:      *minLevel,
		maxLevel:      *maxLevel,
		numClasses:    *numClasses,
		boxes:         *boxes,
		seed:          uint64(*seed), //nolint:gosec // seeds are small
		compiled:      *compiled,
		channelsFirst: *channelsFirst,
		noise:         float32(*noise),
	}

	switch {
	case computeCmd.Happened():
		check(runCompute(logger, opts))
	case compareCmd.Happened():
		check(runCompare(logger, opts))
	case fitCmd.Happened():
		check(runFit(logger, opts, *optimizer, *steps, float32(*lr)))
	}
}

func (o options) lossConfig() (detection.Config, error) {
	cfg := detection.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = detection.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}
	if o.numClasses > 0 {
		cfg.NumClasses = o.numClasses
	}
	if o.compiled {
		cfg.UseCompiledPath = true
	}
	cfg.ChannelsFirst = o.channelsFirst
	return cfg, cfg.Validate()
}

func (o options) synthConfig(numClasses int) synth.Config {
	ac := anchors.DefaultConfig()
	ac.MinLevel, ac.MaxLevel = o.minLevel, o.maxLevel
	ac.ImageSize = [2]int{o.imageSize, o.imageSize}
	return synth.Config{
		Anchors:       ac,
		NumClasses:    numClasses,
		BatchSize:     o.batch,
		BoxesPerImage: o.boxes,
		OutputNoise:   o.noise,
		ChannelsFirst: o.channelsFirst,
	}
}

func (o options) rng() *rand.Rand {
	return rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
}

func runCompute(log logs.Log, o options) error {
	cfg, err := o.lossConfig()
	if err != nil {
		return err
	}
	backend := cpu.New()
	b, err := synth.NewBatch(o.synthConfig(cfg.NumClasses), o.rng(), backend)
	if err != nil {
		return err
	}
	loss, err := detection.New(cfg, b.Anchors, backend, detection.WithLog(log))
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := loss.Forward(b.Levels, b.NumPositives)
	if err != nil {
		return err
	}
	log.Infof("%s path took %v", loss.Path(), time.Since(start))
	fmt.Printf("total %.6f  cls %.6f  box %.6f  positives %v\n",
		res.Total.Item(), res.Cls.Item(), res.Box.Item(), b.NumPositives.Data())
	return nil
}

func runCompare(log logs.Log, o options) error {
	cfg, err := o.lossConfig()
	if err != nil {
		return err
	}
	backend := cpu.New()
	b, err := synth.NewBatch(o.synthConfig(cfg.NumClasses), o.rng(), backend)
	if err != nil {
		return err
	}

	results := make(map[bool]detection.Result[*cpu.CPUBackend])
	for _, compiledPath := range []bool{false, true} {
		c := cfg
		c.UseCompiledPath = compiledPath
		loss, err := detection.New(c, b.Anchors, backend, detection.WithLog(log))
		if err != nil {
			return err
		}
		start := time.Now()
		res, err := loss.Forward(b.Levels, b.NumPositives)
		if err != nil {
			return err
		}
		log.Infof("%-8s total %.6f  cls %.6f  box %.6f  (%v)",
			loss.Path(), res.Total.Item(), res.Cls.Item(), res.Box.Item(), time.Since(start))
		results[compiledPath] = res
	}

	diff := math.Abs(float64(results[true].Total.Item() - results[false].Total.Item()))
	fmt.Printf("|compiled - eager| = %.3g\n", diff)
	if diff > 1e-3*math.Max(1, math.Abs(float64(results[false].Total.Item()))) {
		return fmt.Errorf("paths disagree by %.3g", diff)
	}
	return nil
}

type fitBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func runFit(log logs.Log, o options, optimizerName string, steps int, lr float32) error {
	cfg, err := o.lossConfig()
	if err != nil {
		return err
	}
	backend := autodiff.New(cpu.New())
	b, err := synth.NewBatch(o.synthConfig(cfg.NumClasses), o.rng(), backend)
	if err != nil {
		return err
	}
	loss, err := detection.New(cfg, b.Anchors, backend, detection.WithLog(log))
	if err != nil {
		return err
	}

	var params []*nn.Parameter[fitBackend]
	for i, level := range b.Levels {
		params = append(params,
			nn.NewParameter(fmt.Sprintf("cls%d", i), level.ClsOutputs),
			nn.NewParameter(fmt.Sprintf("box%d", i), level.BoxOutputs))
	}
	opt, err := optim.New(optimizerName, params, optim.Config{LR: lr, Momentum: 0.9})
	if err != nil {
		return err
	}

	tape := backend.Tape()
	for step := range steps {
		tape.Clear()
		tape.StartRecording()
		res, err := loss.Forward(b.Levels, b.NumPositives)
		if err != nil {
			tape.StopRecording()
			return err
		}
		grads := autodiff.Backward(res.Total, backend)
		tape.StopRecording()
		opt.Step(grads)

		if step%10 == 0 || step == steps-1 {
			log.Infof("step %3d  total %.6f  cls %.6f  box %.6f",
				step, res.Total.Item(), res.Cls.Item(), res.Box.Item())
		}
	}
	tape.Clear()

	final, err := loss.Forward(b.Levels, b.NumPositives)
	if err != nil {
		return err
	}
	fmt.Printf("final total %.6f  cls %.6f  box %.6f\n", final.Total.Item(), final.Cls.Item(), final.Box.Item())
	return nil
}
