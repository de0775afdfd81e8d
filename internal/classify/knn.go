// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package classify

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// KNN classifies a feature vector against a labeled prototype set: Euclidean
// distance to every prototype, k nearest selected, distance-weighted vote per
// place. Prototypes come from windowed training data exported offline.
type KNN struct {
	prototypes []Prototype
	k          int
	dim        int
}

// Prototype is one labeled training record in feature space.
type Prototype struct {
	Place    string    `json:"place"`
	Features []float64 `json:"features"`
}

// distanceEpsilon keeps the inverse-distance weight finite for exact matches.
const distanceEpsilon = 1e-9

// NewKNN builds a classifier from prototypes. All prototypes must share one
// feature width; k is capped at the prototype count.
func NewKNN(prototypes []Prototype, k int) (*KNN, error) {
	if k <= 0 {
		return nil, fmt.Errorf("invalid neighbor count %d", k)
	}
	if len(prototypes) == 0 {
		return nil, fmt.Errorf("knn requires at least one prototype")
	}

	dim := len(prototypes[0].Features)
	if dim == 0 {
		return nil, fmt.Errorf("prototype 0 has no features")
	}
	for i, p := range prototypes {
		if p.Place == "" {
			return nil, fmt.Errorf("prototype %d missing place label", i)
		}
		if len(p.Features) != dim {
			return nil, fmt.Errorf("prototype %d has %d features, want %d", i, len(p.Features), dim)
		}
	}

	if k > len(prototypes) {
		k = len(prototypes)
	}
	return &KNN{prototypes: prototypes, k: k, dim: dim}, nil
}

// LoadKNN reads a prototype set from a JSON file.
func LoadKNN(path string, k int) (*KNN, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prototypes: %w", err)
	}

	var prototypes []Prototype
	if err := json.Unmarshal(data, &prototypes); err != nil {
		return nil, fmt.Errorf("failed to parse prototypes: %w", err)
	}
	return NewKNN(prototypes, k)
}

// InputDim returns the width of feature vectors the classifier accepts.
func (c *KNN) InputDim() int {
	return c.dim
}

// Predict returns the place with the highest aggregated neighbor weight.
// Score is that place's share of the total neighbor weight.
func (c *KNN) Predict(features []float64) (Prediction, error) {
	if len(features) != c.dim {
		return Prediction{}, dimensionError("knn", len(features), c.dim)
	}

	type pair struct {
		index    int
		distance float64
	}
	distances := make([]pair, len(c.prototypes))
	for i, p := range c.prototypes {
		distances[i] = pair{index: i, distance: euclidean(features, p.Features)}
	}
	sort.Slice(distances, func(i, j int) bool {
		if distances[i].distance != distances[j].distance {
			return distances[i].distance < distances[j].distance
		}
		return distances[i].index < distances[j].index
	})

	weights := make(map[string]float64)
	total := 0.0
	for _, nb := range distances[:c.k] {
		w := 1.0 / (nb.distance + distanceEpsilon)
		weights[c.prototypes[nb.index].Place] += w
		total += w
	}

	best := Prediction{}
	for place, w := range weights {
		score := w / total
		if score > best.Score || (score == best.Score && place < best.Place) {
			best = Prediction{Place: place, Score: score}
		}
	}
	return best, nil
}

// euclidean is the L2 distance between two equal-length vectors.
func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
