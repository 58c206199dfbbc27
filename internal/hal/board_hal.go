package hal

// BoardHAL is the concrete HAL for a Linux single-board computer: a
// gpiocdev-backed GPIOProvider (limit-switch edge watch, general I/O)
// paired with detected board information, plus an optional go-rpio
// direct-register fast path for step pulses. On non-Linux hosts
// GpiocdevGPIO is the stub from gpio_gpiocdev_stub.go, so this type
// compiles everywhere but only functions on Linux.
type BoardHAL struct {
	gpio *GpiocdevGPIO
	fast *RpioGPIO // nil if the direct-register mapping could not be opened
	info BoardInfo
}

// NewBoardHAL detects the board and opens its GPIO character device. The
// go-rpio fast path is best-effort: boards/kernels that don't expose
// /dev/mem (or lack the capability) still get a fully working HAL through
// GpiocdevGPIO alone, just without the register-level step-pulse path.
func NewBoardHAL() (*BoardHAL, error) {
	info, err := DetectBoard()
	if err != nil {
		return nil, err
	}

	gpio, err := NewGpiocdevGPIO(info.GPIOChip)
	if err != nil {
		return nil, err
	}

	fast, _ := NewRpioGPIO()

	return &BoardHAL{gpio: gpio, fast: fast, info: *info}, nil
}

func (h *BoardHAL) GPIO() GPIOProvider { return h.gpio }
func (h *BoardHAL) Info() BoardInfo    { return h.info }

// FastGPIO returns the go-rpio direct-register provider for the
// HIGH-priority DDA pump's step pulses, or nil if it wasn't available
// (the caller should fall back to GPIO() in that case).
func (h *BoardHAL) FastGPIO() GPIOProvider {
	if h.fast == nil {
		return nil
	}
	return h.fast
}

func (h *BoardHAL) Close() error {
	if h.fast != nil {
		_ = h.fast.Close()
	}
	return h.gpio.Close()
}
