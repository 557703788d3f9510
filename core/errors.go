// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"
)

// Package errors. The split follows the recovery contract: out-of-date
// swapchains are recreated, everything else at frame scope is fatal.
var (
	// ErrSwapchainOutOfDate reports that the surface no longer matches
	// the swapchain. Recoverable via RecreateSwapchain.
	ErrSwapchainOutOfDate = errors.New("core: swapchain out of date")

	// ErrDeviceLost reports an unrecoverable device condition, including
	// fence waits that exceeded their bounded timeout.
	ErrDeviceLost = errors.New("core: device lost")

	// ErrFenceTimeout is returned by Fence.Wait when the bounded wait
	// lapses. The frame ring converts it into ErrDeviceLost.
	ErrFenceTimeout = errors.New("core: fence wait timed out")
)

// ContextInitError is returned when context bring-up cannot complete: no
// suitable device, queue family or swapchain format. It is fatal; there is
// no retry path.
type ContextInitError struct {
	Stage string
	Err   error
}

// Error implements error.
func (e *ContextInitError) Error() string {
	return fmt.Sprintf("context init failed at %s: %s", e.Stage, e.Err.Error())
}

// Unwrap implements errors.Unwrap.
func (e *ContextInitError) Unwrap() error {
	return e.Err
}

func initErr(stage string, err error) error {
	return &ContextInitError{Stage: stage, Err: err}
}
