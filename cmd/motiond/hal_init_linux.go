//go:build linux
// +build linux

package main

import (
	"go.uber.org/zap"

	"github.com/tinygo-motion/motioncore/internal/hal"
)

// initHAL brings up the board GPIO backend on Linux/ARM targets, falling
// back to a MockHAL when board detection or GPIO init fails so hosted
// runs still work. The second return value is the go-rpio fast step-pulse
// path, or nil if it could not be opened.
func initHAL(log *zap.Logger) (hal.GPIOProvider, hal.GPIOProvider) {
	boardHAL, err := hal.NewBoardHAL()
	if err != nil {
		log.Warn("board HAL init failed, using mock GPIO", zap.Error(err))
		mock := hal.NewMockHAL()
		hal.SetGlobalHAL(mock)
		return mock.GPIO(), nil
	}

	info := boardHAL.Info()
	log.Info("board HAL initialized", zap.String("board", info.Name), zap.String("gpio_chip", info.GPIOChip))
	hal.SetGlobalHAL(boardHAL)

	fast := boardHAL.FastGPIO()
	if fast == nil {
		log.Info("go-rpio fast step path unavailable, using gpiocdev for step pulses")
	}
	return boardHAL.GPIO(), fast
}
