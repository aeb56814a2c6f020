package optim

import (
	"math"

	"github.com/xxxsen/semsim/internal/encoder"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

type moments struct {
	m []float64
	v []float64
}

// Adam keeps first and second moment estimates per parameter name.
type Adam struct {
	lr       float64
	gradClip float64
	t        int
	state    map[string]*moments
}

func NewAdam(lr float64, gradClip float64) *Adam {
	return &Adam{
		lr:       lr,
		gradClip: gradClip,
		state:    make(map[string]*moments),
	}
}

func (a *Adam) Step(params []encoder.Param) error {
	a.t++
	b1Corr := 1.0 - math.Pow(adamBeta1, float64(a.t))
	b2Corr := 1.0 - math.Pow(adamBeta2, float64(a.t))
	for _, p := range params {
		r, c := p.Value.Dims()
		st := a.ensure(p.Name, r*c)
		offset := 0
		err := rows(p, func(values, grads []float64) {
			for j := range values {
				g := clip(grads[j], a.gradClip)
				k := offset + j
				st.m[k] = adamBeta1*st.m[k] + (1-adamBeta1)*g
				st.v[k] = adamBeta2*st.v[k] + (1-adamBeta2)*g*g
				mhat := st.m[k] / b1Corr
				vhat := st.v[k] / b2Corr
				values[j] -= a.lr * mhat / (math.Sqrt(vhat) + adamEpsilon)
			}
			offset += len(values)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *Adam) ensure(name string, size int) *moments {
	st, ok := a.state[name]
	if !ok || len(st.m) != size {
		st = &moments{m: make([]float64, size), v: make([]float64, size)}
		a.state[name] = st
	}
	return st
}

func (a *Adam) LearningRate() float64 {
	return a.lr
}

func (a *Adam) SetLearningRate(lr float64) {
	a.lr = lr
}

func (a *Adam) StepCount() int {
	return a.t
}

func (a *Adam) ZeroGrad(params []encoder.Param) {
	zeroGrad(params)
}
