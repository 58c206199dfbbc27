// Command motiond runs the motion core as a standalone daemon: it loads
// axis/motor/system configuration, detects the board, brings up the HAL,
// and drives the planner/exec/DDA pumps until signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tinygo-motion/motioncore/internal/config"
	"github.com/tinygo-motion/motioncore/internal/dda"
	"github.com/tinygo-motion/motioncore/internal/logger"
	"github.com/tinygo-motion/motioncore/internal/system"
)

var Version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to motioncore config file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "motiond: failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		LogDir: cfg.Logger.Path,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "motiond: failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("motioncore starting", zap.String("version", Version))

	gpio, fastGPIO := initHAL(log)

	profile := config.DetectProfile()
	if pcfg, err := config.LoadProfile(string(profile)); err == nil {
		if cfg.System.RingDepth == 0 || cfg.System.RingDepth > pcfg.RingDepth {
			cfg.System.RingDepth = pcfg.RingDepth
		}
		log.Info("detected board profile",
			zap.String("profile", string(profile)),
			zap.Int("ring_depth", cfg.System.RingDepth))
	} else {
		log.Info("detected board profile", zap.String("profile", string(profile)))
	}

	pins := defaultPinMap(len(cfg.Motors))

	sys := system.New(cfg, gpio, fastGPIO, pins)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, err := sys.Start(ctx)
	if err != nil {
		log.Fatal("failed to start motion core", zap.Error(err))
	}
	defer sys.Close()

	log.Info("motioncore running", zap.Int("axes", len(cfg.Axes)), zap.Int("motors", len(cfg.Motors)))

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("motion core pump exited with error", zap.Error(err))
	}

	log.Info("motioncore stopped")
}

// defaultPinMap is a placeholder board pinout; real deployments override
// this through a config-driven pin table. It only needs to be plausible
// enough to drive a MockHAL or BoardHAL in the same shape.
func defaultPinMap(numMotors int) dda.PinMap {
	pins := dda.PinMap{
		Step:   make([]int, numMotors),
		Dir:    make([]int, numMotors),
		Enable: make([]int, numMotors),
	}
	base := 2
	for i := 0; i < numMotors; i++ {
		pins.Step[i] = base + i*3
		pins.Dir[i] = base + i*3 + 1
		pins.Enable[i] = base + i*3 + 2
	}
	return pins
}
