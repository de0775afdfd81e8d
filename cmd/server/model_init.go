// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package main

import (
	"fmt"

	"github.com/mizulab/aqualoc/internal/classify"
	"github.com/mizulab/aqualoc/internal/config"
	"github.com/mizulab/aqualoc/internal/logging"
	"github.com/mizulab/aqualoc/internal/window"
)

// modelBundle groups the classification collaborators loaded from disk.
type modelBundle struct {
	classifier  classify.Classifier
	reducer     *classify.Reducer
	powerParams window.PowerParams
}

// buildModel loads the configured classifier plus its optional reducer and
// Box-Cox parameters, and validates their widths against the catalog.
func buildModel(cfg *config.ModelConfig, catalog *window.Catalog) (*modelBundle, error) {
	bundle := &modelBundle{}
	inputDim := 0

	switch cfg.Type {
	case "network":
		net, err := classify.LoadNetwork(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load network from %s: %w", cfg.Path, err)
		}
		logging.Info().
			Str("path", cfg.Path).
			Int("input_dim", net.InputDim()).
			Strs("places", net.Places()).
			Msg("Network model loaded")
		bundle.classifier = net
		inputDim = net.InputDim()

	case "knn":
		knn, err := classify.LoadKNN(cfg.Path, cfg.KNNNeighbors)
		if err != nil {
			return nil, fmt.Errorf("failed to load KNN prototypes from %s: %w", cfg.Path, err)
		}
		logging.Info().
			Str("path", cfg.Path).
			Int("input_dim", knn.InputDim()).
			Int("neighbors", cfg.KNNNeighbors).
			Msg("KNN model loaded")
		bundle.classifier = knn
		inputDim = knn.InputDim()

	default:
		return nil, fmt.Errorf("unknown model type %q", cfg.Type)
	}

	if cfg.ReducerPath != "" {
		reducer, err := classify.LoadReducer(cfg.ReducerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load reducer from %s: %w", cfg.ReducerPath, err)
		}
		if reducer.InputDim() != catalog.Len() {
			return nil, fmt.Errorf("reducer expects %d features but catalog has %d columns",
				reducer.InputDim(), catalog.Len())
		}
		logging.Info().
			Str("path", cfg.ReducerPath).
			Int("input_dim", reducer.InputDim()).
			Int("output_dim", reducer.OutputDim()).
			Msg("Reducer loaded")
		bundle.reducer = reducer
	}

	// The classifier must consume exactly the width the pipeline produces:
	// the catalog width, or the reducer's output width when one is loaded.
	featureWidth := catalog.Len()
	if bundle.reducer != nil {
		featureWidth = bundle.reducer.OutputDim()
	}
	if inputDim != featureWidth {
		return nil, fmt.Errorf("model expects %d features but the pipeline produces %d", inputDim, featureWidth)
	}

	if cfg.PowerParamsPath != "" {
		var params window.PowerParams
		if err := params.Load(cfg.PowerParamsPath); err != nil {
			return nil, fmt.Errorf("failed to load power parameters from %s: %w", cfg.PowerParamsPath, err)
		}
		bundle.powerParams = params
	}

	return bundle, nil
}
