// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package classify

import (
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-json"
)

// Network is a small feed-forward classifier over place labels. Weights are
// trained offline and exported as JSON; inference is a handful of dense
// matrix-vector products, so no ML runtime is needed here.
//
// The final layer's softmax output is a probability distribution over Places;
// Predict takes the argmax.
type Network struct {
	layers []layer
	places []string
}

type layer struct {
	weights    [][]float64 // [out][in]
	bias       []float64   // [out]
	activation string
}

// networkFile is the on-disk model format.
type networkFile struct {
	Places []string    `json:"places"`
	Layers []layerFile `json:"layers"`
}

type layerFile struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"` // relu, silu, softmax, linear
}

// LoadNetwork reads a feed-forward model from a JSON file and validates its
// shape: consistent layer dimensions and a final layer as wide as the place
// list.
func LoadNetwork(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network model: %w", err)
	}

	var file networkFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse network model: %w", err)
	}
	return buildNetwork(file)
}

// buildNetwork validates the parsed model shape and assembles the network.
func buildNetwork(file networkFile) (*Network, error) {
	if len(file.Layers) == 0 {
		return nil, fmt.Errorf("network model has no layers")
	}
	if len(file.Places) == 0 {
		return nil, fmt.Errorf("network model has no place labels")
	}

	layers := make([]layer, len(file.Layers))
	prevOut := -1
	for i, lf := range file.Layers {
		if len(lf.Weights) == 0 {
			return nil, fmt.Errorf("layer %d has no weights", i)
		}
		in := len(lf.Weights[0])
		for r, row := range lf.Weights {
			if len(row) != in {
				return nil, fmt.Errorf("layer %d row %d has ragged width", i, r)
			}
		}
		if len(lf.Bias) != len(lf.Weights) {
			return nil, fmt.Errorf("layer %d bias length %d does not match %d outputs", i, len(lf.Bias), len(lf.Weights))
		}
		if prevOut >= 0 && in != prevOut {
			return nil, fmt.Errorf("layer %d expects %d inputs but layer %d produces %d", i, in, i-1, prevOut)
		}
		switch lf.Activation {
		case "relu", "silu", "softmax", "linear", "":
		default:
			return nil, fmt.Errorf("layer %d has unknown activation %q", i, lf.Activation)
		}
		layers[i] = layer{weights: lf.Weights, bias: lf.Bias, activation: lf.Activation}
		prevOut = len(lf.Weights)
	}

	if prevOut != len(file.Places) {
		return nil, fmt.Errorf("network outputs %d classes but %d places are configured", prevOut, len(file.Places))
	}

	return &Network{layers: layers, places: append([]string(nil), file.Places...)}, nil
}

// InputDim returns the width of feature vectors the network accepts.
func (n *Network) InputDim() int {
	return len(n.layers[0].weights[0])
}

// Places returns the ordered output labels.
func (n *Network) Places() []string {
	return append([]string(nil), n.places...)
}

// Predict runs the forward pass and returns the argmax place with its
// probability.
func (n *Network) Predict(features []float64) (Prediction, error) {
	if len(features) != n.InputDim() {
		return Prediction{}, dimensionError("network", len(features), n.InputDim())
	}

	x := features
	for _, l := range n.layers {
		x = l.forward(x)
	}

	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return Prediction{Place: n.places[best], Score: x[best]}, nil
}

// forward computes activation(Wx + b).
func (l layer) forward(x []float64) []float64 {
	out := make([]float64, len(l.weights))
	for o, row := range l.weights {
		sum := l.bias[o]
		for i, w := range row {
			sum += w * x[i]
		}
		out[o] = sum
	}

	switch l.activation {
	case "relu":
		for i, v := range out {
			if v < 0 {
				out[i] = 0
			}
		}
	case "silu":
		for i, v := range out {
			out[i] = v / (1 + math.Exp(-v))
		}
	case "softmax":
		softmaxInPlace(out)
	}
	return out
}

// softmaxInPlace normalizes with the max-subtraction trick for stability.
func softmaxInPlace(xs []float64) {
	maxV := xs[0]
	for _, v := range xs[1:] {
		if v > maxV {
			maxV = v
		}
	}
	sum := 0.0
	for i, v := range xs {
		xs[i] = math.Exp(v - maxV)
		sum += xs[i]
	}
	for i := range xs {
		xs[i] /= sum
	}
}
