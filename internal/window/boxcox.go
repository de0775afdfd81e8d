// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package window

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// Power-transform preconditions. Box-Cox is undefined for non-positive
// values and cannot be fitted on degenerate groups; violations abort the
// whole batch rather than skipping records.
var (
	ErrGroupTooSmall    = errors.New("power transform group needs at least 2 samples")
	ErrNonPositiveValue = errors.New("power transform requires strictly positive values")
	ErrConstantGroup    = errors.New("power transform group must not be constant")
	ErrMissingLambda    = errors.New("no power transform parameter for group")
)

// PowerParams holds the fitted Box-Cox lambda per "place-detector" group.
type PowerParams map[string]float64

// FitPowerTransform fits a Box-Cox transform per (place, detector) group over
// the entire observation set and returns the transformed copy together with
// the fitted parameters. Fitting happens before any windowing, on raw
// proximities, grouped across the whole dataset.
//
// Hard preconditions, checked per group: at least two samples, all strictly
// positive, not constant. Any violation fails the whole fit.
func FitPowerTransform(obs []Observation) ([]Observation, PowerParams, error) {
	groups := make(map[string][]float64)
	for _, o := range obs {
		key := Entry{Place: o.Place, Detector: o.DetectorID}.Key()
		groups[key] = append(groups[key], o.Proximity)
	}

	params := make(PowerParams, len(groups))
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		lambda, err := fitLambda(groups[key])
		if err != nil {
			return nil, nil, fmt.Errorf("group %s: %w", key, err)
		}
		params[key] = lambda
	}

	transformed, err := ApplyPowerTransform(obs, params)
	if err != nil {
		return nil, nil, err
	}
	return transformed, params, nil
}

// ApplyPowerTransform transforms proximities with previously fitted
// parameters. Every observation's (place, detector) group must have a
// parameter; a missing group indicates parameter/catalog skew and fails the
// batch.
func ApplyPowerTransform(obs []Observation, params PowerParams) ([]Observation, error) {
	transformed := append([]Observation(nil), obs...)
	for i, o := range transformed {
		key := Entry{Place: o.Place, Detector: o.DetectorID}.Key()
		lambda, ok := params[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingLambda, key)
		}
		if o.Proximity <= 0 {
			return nil, fmt.Errorf("group %s: %w (got %v)", key, ErrNonPositiveValue, o.Proximity)
		}
		transformed[i].Proximity = boxcox(o.Proximity, lambda)
	}
	return transformed, nil
}

// Load reads power-transform parameters from a JSON file.
func (p *PowerParams) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read power transform parameters: %w", err)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("failed to parse power transform parameters: %w", err)
	}
	return nil
}

// Save writes the parameters to a JSON file.
func (p PowerParams) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal power transform parameters: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write power transform parameters: %w", err)
	}
	return nil
}

// boxcox applies the Box-Cox transform for a fixed lambda.
func boxcox(x, lambda float64) float64 {
	if lambda == 0 {
		return math.Log(x)
	}
	return (math.Pow(x, lambda) - 1) / lambda
}

// fitLambda estimates the Box-Cox lambda by maximizing the profile
// log-likelihood with a golden-section search over [-5, 5].
func fitLambda(xs []float64) (float64, error) {
	if len(xs) < 2 {
		return 0, ErrGroupTooSmall
	}

	logSum := 0.0
	constant := true
	for _, x := range xs {
		if x <= 0 {
			return 0, fmt.Errorf("%w (got %v)", ErrNonPositiveValue, x)
		}
		if x != xs[0] {
			constant = false
		}
		logSum += math.Log(x)
	}
	if constant {
		return 0, ErrConstantGroup
	}

	const (
		lo        = -5.0
		hi        = 5.0
		tolerance = 1e-8
	)
	invPhi := (math.Sqrt(5) - 1) / 2

	a, b := lo, hi
	c := b - invPhi*(b-a)
	d := a + invPhi*(b-a)
	fc := boxcoxLLF(c, xs, logSum)
	fd := boxcoxLLF(d, xs, logSum)

	for b-a > tolerance {
		if fc > fd {
			b, d, fd = d, c, fc
			c = b - invPhi*(b-a)
			fc = boxcoxLLF(c, xs, logSum)
		} else {
			a, c, fc = c, d, fd
			d = a + invPhi*(b-a)
			fd = boxcoxLLF(d, xs, logSum)
		}
	}
	return (a + b) / 2, nil
}

// boxcoxLLF is the Box-Cox profile log-likelihood for a candidate lambda.
func boxcoxLLF(lambda float64, xs []float64, logSum float64) float64 {
	n := float64(len(xs))

	mean := 0.0
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = boxcox(x, lambda)
		mean += ys[i]
	}
	mean /= n

	variance := 0.0
	for _, y := range ys {
		diff := y - mean
		variance += diff * diff
	}
	variance /= n

	if variance <= 0 {
		return math.Inf(-1)
	}
	return (lambda-1)*logSum - n/2*math.Log(variance)
}
