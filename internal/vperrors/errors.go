// SPDX-License-Identifier: MIT

// Package vperrors holds the root error of the processing taxonomy.
// Every failure produced by the pipeline core wraps ErrProcessing, so
// callers can match the whole family with a single errors.Is check.
package vperrors

import "errors"

// ErrProcessing is the supertype of all pipeline errors. Stage, cache,
// queue and pool errors all wrap it.
var ErrProcessing = errors.New("video processing error")
