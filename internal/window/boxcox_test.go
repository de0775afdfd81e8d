// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package window

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestFitPowerTransformPreconditions(t *testing.T) {
	tests := []struct {
		name    string
		obs     []Observation
		wantErr error
	}{
		{
			name: "group with one sample",
			obs: []Observation{
				obsAt("R1", "0", 0, 50),
				obsAt("R1", "0", 5, 60),
				obsAt("R2", "0", 10, 70),
			},
			wantErr: ErrGroupTooSmall,
		},
		{
			name: "non-positive value",
			obs: []Observation{
				obsAt("R1", "0", 0, 50),
				obsAt("R1", "0", 5, -3),
			},
			wantErr: ErrNonPositiveValue,
		},
		{
			name: "zero value",
			obs: []Observation{
				obsAt("R1", "0", 0, 0),
				obsAt("R1", "0", 5, 60),
			},
			wantErr: ErrNonPositiveValue,
		},
		{
			name: "constant group",
			obs: []Observation{
				obsAt("R1", "0", 0, 50),
				obsAt("R1", "0", 5, 50),
				obsAt("R1", "0", 10, 50),
			},
			wantErr: ErrConstantGroup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := FitPowerTransform(tt.obs)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFitPowerTransformPerGroupLambdas(t *testing.T) {
	obs := []Observation{
		obsAt("R1", "0", 0, 12),
		obsAt("R1", "0", 5, 45),
		obsAt("R1", "0", 10, 78),
		obsAt("R1", "0", 15, 33),
		obsAt("R2", "0", 0, 1),
		obsAt("R2", "0", 5, 10),
		obsAt("R2", "0", 10, 100),
		obsAt("R2", "0", 15, 1000),
	}

	transformed, params, err := FitPowerTransform(obs)
	if err != nil {
		t.Fatalf("FitPowerTransform: %v", err)
	}

	if len(params) != 2 {
		t.Fatalf("fitted %d groups, want 2", len(params))
	}
	if _, ok := params["R1-0"]; !ok {
		t.Error("missing lambda for R1-0")
	}
	if _, ok := params["R2-0"]; !ok {
		t.Error("missing lambda for R2-0")
	}

	// The R2-0 group is exactly exponential: the log transform (lambda 0)
	// linearizes it perfectly, so the fitted lambda should be near zero.
	if l := params["R2-0"]; math.Abs(l) > 0.05 {
		t.Errorf("lambda for exponential group = %v, want ~0", l)
	}

	if len(transformed) != len(obs) {
		t.Fatalf("transformed length = %d, want %d", len(transformed), len(obs))
	}
	// Order and identity fields survive the transform.
	for i := range obs {
		if transformed[i].Timestamp != obs[i].Timestamp ||
			transformed[i].Place != obs[i].Place ||
			transformed[i].DetectorID != obs[i].DetectorID {
			t.Fatalf("observation %d identity changed", i)
		}
	}
	// Box-Cox is monotonic: ordering within a group is preserved.
	if !(transformed[4].Proximity < transformed[5].Proximity &&
		transformed[5].Proximity < transformed[6].Proximity &&
		transformed[6].Proximity < transformed[7].Proximity) {
		t.Error("transform broke monotonic ordering within group")
	}
}

func TestBoxcoxLambdaZeroIsLog(t *testing.T) {
	if got := boxcox(math.E, 0); math.Abs(got-1) > 1e-12 {
		t.Errorf("boxcox(e, 0) = %v, want 1", got)
	}
	if got := boxcox(4, 1); math.Abs(got-3) > 1e-12 {
		t.Errorf("boxcox(4, 1) = %v, want 3", got)
	}
	// lambda 2: (x^2-1)/2
	if got := boxcox(3, 2); math.Abs(got-4) > 1e-12 {
		t.Errorf("boxcox(3, 2) = %v, want 4", got)
	}
}

func TestFitLambdaRecoversKnownTransform(t *testing.T) {
	// Build data whose square is normal-ish: y ~ {1..9}, x = y^2. The
	// likelihood should peak near lambda = 0.5 (square root).
	xs := make([]float64, 0, 9)
	for y := 1.0; y <= 9; y++ {
		xs = append(xs, y*y)
	}

	lambda, err := fitLambda(xs)
	if err != nil {
		t.Fatalf("fitLambda: %v", err)
	}
	if math.Abs(lambda-0.5) > 0.25 {
		t.Errorf("lambda = %v, want near 0.5", lambda)
	}
}

func TestApplyPowerTransformMissingGroup(t *testing.T) {
	params := PowerParams{"R1-0": 0.5}
	obs := []Observation{
		obsAt("R1", "0", 0, 50),
		obsAt("R2", "0", 5, 60),
	}

	_, err := ApplyPowerTransform(obs, params)
	if !errors.Is(err, ErrMissingLambda) {
		t.Errorf("error = %v, want ErrMissingLambda", err)
	}
}

func TestApplyPowerTransformNonPositive(t *testing.T) {
	params := PowerParams{"R1-0": 0.5}
	obs := []Observation{obsAt("R1", "0", 0, -1)}

	_, err := ApplyPowerTransform(obs, params)
	if !errors.Is(err, ErrNonPositiveValue) {
		t.Errorf("error = %v, want ErrNonPositiveValue", err)
	}
}

func TestPowerParamsSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boxcox.json")
	params := PowerParams{"8-302-0": 0.1234, "8-303-1": -0.5}

	if err := params.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var loaded PowerParams
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 || loaded["8-302-0"] != 0.1234 || loaded["8-303-1"] != -0.5 {
		t.Errorf("loaded = %v, want %v", loaded, params)
	}
}

func TestPowerParamsLoadMissingFile(t *testing.T) {
	var params PowerParams
	err := params.Load(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want wrapped os.ErrNotExist", err)
	}
}
