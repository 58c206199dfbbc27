package hal

import (
	"fmt"
	"os"
	"strings"
)

type BoardModel int

const (
	BoardUnknown BoardModel = iota
	BoardRPiZero
	BoardRPiZeroW
	BoardRPiZero2W
	BoardRPi1
	BoardRPi2
	BoardRPi3
	BoardRPi3Plus
	BoardRPi4
	BoardRPi5
	BoardRPiCM3
	BoardRPiCM4
)

// BoardInfo is the subset of board identity a motion controller cares
// about: which GPIO character device carries the header pins, how many
// usable lines it has, and enough CPU/RAM context to pick a planner
// profile.
type BoardInfo struct {
	Model    BoardModel
	Name     string
	NumGPIO  int
	CPUCores int
	RAMSize  int // MB; 0 when /proc/meminfo is unavailable
	GPIOChip string
}

// boardSpec is the static per-model table; RAM is probed at detect time
// on models that ship in several memory configurations.
type boardSpec struct {
	name     string
	numGPIO  int
	cpuCores int
	ramMB    int // 0 means probe /proc/meminfo
}

var boardSpecs = map[BoardModel]boardSpec{
	BoardRPiZero:   {"Raspberry Pi Zero", 26, 1, 512},
	BoardRPiZeroW:  {"Raspberry Pi Zero W", 26, 1, 512},
	BoardRPiZero2W: {"Raspberry Pi Zero 2 W", 26, 4, 512},
	BoardRPi1:      {"Raspberry Pi 1", 26, 1, 512},
	BoardRPi2:      {"Raspberry Pi 2", 26, 4, 1024},
	BoardRPi3:      {"Raspberry Pi 3", 26, 4, 1024},
	BoardRPi3Plus:  {"Raspberry Pi 3 Model B+", 26, 4, 1024},
	BoardRPi4:      {"Raspberry Pi 4", 26, 4, 0},
	BoardRPi5:      {"Raspberry Pi 5", 26, 4, 0},
	BoardRPiCM3:    {"Raspberry Pi Compute Module 3", 28, 4, 1024},
	BoardRPiCM4:    {"Raspberry Pi Compute Module 4", 28, 4, 0},
}

// GPIOChipName returns the GPIO character device for this board model.
// The header controller moved between gpiochip0 and gpiochip4 across Pi 5
// OS releases, so the chip label is probed rather than assumed.
func (b BoardModel) GPIOChipName() string {
	for _, chip := range []string{"gpiochip0", "gpiochip4"} {
		labelPath := fmt.Sprintf("/sys/bus/gpio/devices/%s/label", chip)
		data, err := os.ReadFile(labelPath)
		if err != nil {
			continue
		}
		label := strings.TrimSpace(string(data))
		// Pi 5 header pins sit behind pinctrl-rp1, earlier models behind
		// pinctrl-bcm2xxx.
		if strings.Contains(label, "pinctrl-rp1") || strings.Contains(label, "pinctrl-bcm2") {
			return chip
		}
	}
	return "gpiochip0"
}

// DetectBoard identifies the board from /proc/cpuinfo (with a
// device-tree fallback for models that omit the Model line) and fills in
// the static spec for it.
func DetectBoard() (*BoardInfo, error) {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return nil, fmt.Errorf("failed to read cpuinfo: %w", err)
	}

	model := extractModel(string(data))
	spec, known := boardSpecs[model]
	if !known {
		return &BoardInfo{
			Model:    BoardUnknown,
			Name:     "Unknown Board",
			NumGPIO:  26,
			CPUCores: 1,
			RAMSize:  detectRAMSize(),
			GPIOChip: "gpiochip0",
		}, nil
	}

	ram := spec.ramMB
	if ram == 0 {
		ram = detectRAMSize()
	}
	return &BoardInfo{
		Model:    model,
		Name:     spec.name,
		NumGPIO:  spec.numGPIO,
		CPUCores: spec.cpuCores,
		RAMSize:  ram,
		GPIOChip: model.GPIOChipName(),
	}, nil
}

func extractModel(cpuinfo string) BoardModel {
	for _, line := range strings.Split(cpuinfo, "\n") {
		if strings.HasPrefix(line, "Model") {
			if m := matchBoardModel(line); m != BoardUnknown {
				return m
			}
		}
	}

	// Pi 5 omits the Model line from cpuinfo.
	if dtModel, err := os.ReadFile("/proc/device-tree/model"); err == nil {
		if m := matchBoardModel(string(dtModel)); m != BoardUnknown {
			return m
		}
	}

	return BoardUnknown
}

var modelMatchers = []struct {
	substr string
	model  BoardModel
}{
	// Longest/most specific first.
	{"compute module 4", BoardRPiCM4},
	{"compute module 3", BoardRPiCM3},
	{"pi 3 model b+", BoardRPi3Plus},
	{"zero 2 w", BoardRPiZero2W},
	{"zero w", BoardRPiZeroW},
	{"zero", BoardRPiZero},
	{"pi 5", BoardRPi5},
	{"pi 4", BoardRPi4},
	{"pi 3", BoardRPi3},
	{"pi 2", BoardRPi2},
	{"pi 1", BoardRPi1},
	{"model b", BoardRPi1},
}

func matchBoardModel(text string) BoardModel {
	lowered := strings.ToLower(text)
	for _, m := range modelMatchers {
		if strings.Contains(lowered, m.substr) {
			return m.model
		}
	}
	return BoardUnknown
}

func detectRAMSize() int {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				var kb int
				fmt.Sscanf(parts[1], "%d", &kb)
				return kb / 1024
			}
		}
	}
	return 0
}

func (b BoardModel) String() string {
	if spec, ok := boardSpecs[b]; ok {
		return spec.name
	}
	return "Unknown"
}
