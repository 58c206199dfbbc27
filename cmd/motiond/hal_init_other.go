//go:build !linux
// +build !linux

package main

import (
	"go.uber.org/zap"

	"github.com/tinygo-motion/motioncore/internal/hal"
)

// initHAL uses a MockHAL on non-Linux hosts (dev machines, CI). There is
// no go-rpio fast path off Linux, so the second return value is always
// nil.
func initHAL(log *zap.Logger) (hal.GPIOProvider, hal.GPIOProvider) {
	log.Info("non-Linux platform detected, using mock GPIO")
	mock := hal.NewMockHAL()
	hal.SetGlobalHAL(mock)
	return mock.GPIO(), nil
}
