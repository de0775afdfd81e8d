// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package classify

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// Reducer applies an opaque affine dimensionality reduction
// y = components * (x - mean), as exported by offline PCA/LDA fitting.
// What the projection means is the exporter's business; this layer only
// checks dimensions and multiplies.
type Reducer struct {
	components [][]float64 // [out][in]
	mean       []float64   // [in]
}

type reducerFile struct {
	Components [][]float64 `json:"components"`
	Mean       []float64   `json:"mean"`
}

// LoadReducer reads an affine projection from a JSON file.
func LoadReducer(path string) (*Reducer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reduction model: %w", err)
	}

	var file reducerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse reduction model: %w", err)
	}
	return NewReducer(file.Components, file.Mean)
}

// NewReducer validates the projection's shape.
func NewReducer(components [][]float64, mean []float64) (*Reducer, error) {
	if len(components) == 0 {
		return nil, fmt.Errorf("reduction model has no components")
	}
	in := len(components[0])
	if in == 0 {
		return nil, fmt.Errorf("reduction component 0 is empty")
	}
	for i, row := range components {
		if len(row) != in {
			return nil, fmt.Errorf("reduction component %d has ragged width", i)
		}
	}
	if len(mean) != in {
		return nil, fmt.Errorf("reduction mean length %d does not match input width %d", len(mean), in)
	}
	return &Reducer{components: components, mean: mean}, nil
}

// InputDim returns the pre-projection feature width.
func (r *Reducer) InputDim() int {
	return len(r.components[0])
}

// OutputDim returns the post-projection feature width.
func (r *Reducer) OutputDim() int {
	return len(r.components)
}

// Reduce projects a feature vector into the reduced space.
func (r *Reducer) Reduce(features []float64) ([]float64, error) {
	if len(features) != r.InputDim() {
		return nil, dimensionError("reducer", len(features), r.InputDim())
	}

	centered := make([]float64, len(features))
	for i, v := range features {
		centered[i] = v - r.mean[i]
	}

	out := make([]float64, len(r.components))
	for o, row := range r.components {
		sum := 0.0
		for i, w := range row {
			sum += w * centered[i]
		}
		out[o] = sum
	}
	return out, nil
}
