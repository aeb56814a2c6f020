package optim

import (
	"fmt"
	"strings"

	"github.com/xxxsen/semsim/internal/encoder"
	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
)

const (
	DefaultLearningRate = 2e-5

	NameAdam = "adam"
	NameSGD  = "sgd"
)

// Optimizer applies accumulated gradients to parameters. Step leaves the
// gradients in place; ZeroGrad resets them.
type Optimizer interface {
	Step(params []encoder.Param) error
	ZeroGrad(params []encoder.Param)
	LearningRate() float64
	SetLearningRate(lr float64)
	StepCount() int
}

type Option func(*options)

type options struct {
	gradClip float64
}

// WithGradClip clamps every gradient entry to [-clip, clip] before the update.
func WithGradClip(clip float64) Option {
	return func(o *options) {
		o.gradClip = clip
	}
}

func New(name string, lr float64, opts ...Option) (Optimizer, error) {
	if lr <= 0 {
		lr = DefaultLearningRate
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameAdam:
		return NewAdam(lr, o.gradClip), nil
	case NameSGD:
		return NewSGD(lr, o.gradClip), nil
	default:
		return nil, fmt.Errorf("%w: unknown optimizer %q", appErr.ErrInvalidInput, name)
	}
}

// rows walks a parameter row by row so strided views are handled.
func rows(p encoder.Param, fn func(values, grads []float64)) error {
	if p.Value == nil || p.Grad == nil {
		return fmt.Errorf("%w: parameter %s has no gradient", appErr.ErrTraining, p.Name)
	}
	vr, vc := p.Value.Dims()
	gr, gc := p.Grad.Dims()
	if vr != gr || vc != gc {
		return fmt.Errorf("%w: parameter %s is %dx%d but gradient is %dx%d", appErr.ErrTraining, p.Name, vr, vc, gr, gc)
	}
	for r := 0; r < vr; r++ {
		fn(p.Value.RawRowView(r), p.Grad.RawRowView(r))
	}
	return nil
}

func clip(g, limit float64) float64 {
	if limit <= 0 {
		return g
	}
	if g > limit {
		return limit
	}
	if g < -limit {
		return -limit
	}
	return g
}

func zeroGrad(params []encoder.Param) {
	for _, p := range params {
		if p.Grad != nil {
			p.Grad.Zero()
		}
	}
}
