// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package classify

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch indicates that a feature vector's width does not
// match what the model was trained on. This is catalog/model skew: a
// configuration error to surface immediately, never to pad or truncate.
var ErrDimensionMismatch = errors.New("feature vector width does not match model input")

// Prediction is one classification result: the predicted place and the
// model's raw score (a softmax probability for the network, a weight share
// for the nearest-neighbor vote).
type Prediction struct {
	Place string  `json:"place"`
	Score float64 `json:"score"`
}

// Classifier is the single capability both model families implement.
// Predict takes a feature record's values (post optional dimensionality
// reduction) and returns the estimated place. Implementations are read-only
// after construction and safe for concurrent use.
type Classifier interface {
	Predict(features []float64) (Prediction, error)
}

// dimensionError builds a uniform ErrDimensionMismatch with context.
func dimensionError(model string, got, want int) error {
	return fmt.Errorf("%s: %w: got %d, want %d", model, ErrDimensionMismatch, got, want)
}
