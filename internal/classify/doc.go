// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

/*
Package classify maps fixed-width feature records to room labels.

Two model families implement the one Classifier capability:

  - Network: a small feed-forward net (dense layers with relu/silu, softmax
    head) trained offline and exported as JSON weights. Predict takes the
    argmax over the place distribution.
  - KNN: a labeled prototype set; k nearest by Euclidean distance with an
    inverse-distance weighted vote.

A Reducer can project features through an offline-fitted affine map (PCA or
LDA) before classification.

Feature width is checked everywhere: a mismatch means the detector catalog
and the model disagree, which is a deployment configuration error surfaced
as ErrDimensionMismatch rather than silently padded.
*/
package classify
