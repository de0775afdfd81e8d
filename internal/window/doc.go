// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

/*
Package window implements the sliding-window feature aggregation engine.

It turns an unordered, irregularly-sampled, multi-detector proximity stream
for one beacon into fixed-width feature records suitable for model input.

# Overview

The aggregation pipeline per beacon:

 1. Optional Box-Cox power transform on raw proximities, fitted per
    (place, detector) group across the entire dataset (FitPowerTransform).
 2. Stable sort by timestamp.
 3. Warm-up: the first |catalog| observations open no window. This skip count
    is a heuristic proxy for "the window has seen every detector", kept as
    documented behavior; it does not guarantee coverage.
 4. One window per remaining observation, spanning [t-window, t] inclusive.
 5. Per catalog entry, simple or recency-weighted mean of the window's
    readings; entries without readings take the sentinel value.

# Invariants

  - Output length is exactly max(0, n-|catalog|).
  - Every record carries exactly |catalog| features in catalog order.
  - Aggregation is a pure function: identical inputs give identical output.
  - Sentinel values are the configured constant, never NaN or zero.

# Column layout

The Catalog fixes the feature layout at configuration time. Columns are
addressed by a precomputed (place, detector) index, not by formatted string
keys, keeping the aggregation loop allocation-light.
*/
package window
