// Package classify maps samples to class probabilities and feeds the positive-class
// probability to a stability smoother.
package classify

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

// ErrDistribution is returned for classifier output that is not a two-class
// probability distribution.
var ErrDistribution = errors.New("classify: invalid probability distribution")

// Classifier accepts one feature vector and returns class probabilities.
type Classifier interface {
	Predict(features []float32) ([]float32, error)
}

// Func adapts a function to Classifier.
type Func func(features []float32) ([]float32, error)

func (f Func) Predict(features []float32) ([]float32, error) { return f(features) }

// Linear is a dense layer followed by softmax.
type Linear struct {
	weights [][]float32
	bias    []float32
	inputs  int
}

var _ Classifier = (*Linear)(nil)

// NewLinear creates a linear model with one weight row and one bias per class.
func NewLinear(weights [][]float32, bias []float32) (*Linear, error) {
	if len(weights) < 2 {
		return nil, fmt.Errorf("classify: need at least 2 classes, got %d", len(weights))
	}
	if len(bias) != len(weights) {
		return nil, fmt.Errorf("classify: %d bias values for %d classes", len(bias), len(weights))
	}
	inputs := len(weights[0])
	if inputs == 0 {
		return nil, errors.New("classify: empty weight row")
	}
	for i, row := range weights {
		if len(row) != inputs {
			return nil, fmt.Errorf("classify: weight row %d has %d values, want %d", i, len(row), inputs)
		}
	}
	return &Linear{weights: weights, bias: bias, inputs: inputs}, nil
}

// Predict returns softmax(W·x + b).
func (l *Linear) Predict(features []float32) ([]float32, error) {
	if len(features) != l.inputs {
		return nil, fmt.Errorf("classify: got %d features, want %d", len(features), l.inputs)
	}
	logits := make([]float32, len(l.weights))
	for i, row := range l.weights {
		acc := l.bias[i]
		for j, w := range row {
			acc += w * features[j]
		}
		logits[i] = acc
	}
	return Softmax(logits), nil
}

// Softmax normalizes logits into probabilities.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		maxLogit = math32.Max(maxLogit, v)
	}
	var sum float32
	for i, v := range logits {
		out[i] = math32.Exp(v - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Positive validates a two-class distribution and returns the positive-class probability.
func Positive(probs []float32) (float64, error) {
	if len(probs) != 2 {
		return 0, fmt.Errorf("%w: %d classes", ErrDistribution, len(probs))
	}
	for _, p := range probs {
		if math32.IsNaN(p) || p < 0 || p > 1 {
			return 0, fmt.Errorf("%w: probability %v", ErrDistribution, p)
		}
	}
	if sum := probs[0] + probs[1]; math32.Abs(sum-1) > 1e-3 {
		return 0, fmt.Errorf("%w: sums to %v", ErrDistribution, sum)
	}
	return float64(probs[1]), nil
}
