package optim

import "github.com/xxxsen/semsim/internal/encoder"

// SGD is plain gradient descent without momentum.
type SGD struct {
	lr       float64
	gradClip float64
	t        int
}

func NewSGD(lr float64, gradClip float64) *SGD {
	return &SGD{lr: lr, gradClip: gradClip}
}

func (s *SGD) Step(params []encoder.Param) error {
	s.t++
	for _, p := range params {
		err := rows(p, func(values, grads []float64) {
			for j := range values {
				values[j] -= s.lr * clip(grads[j], s.gradClip)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SGD) LearningRate() float64 {
	return s.lr
}

func (s *SGD) SetLearningRate(lr float64) {
	s.lr = lr
}

func (s *SGD) StepCount() int {
	return s.t
}

func (s *SGD) ZeroGrad(params []encoder.Param) {
	zeroGrad(params)
}
