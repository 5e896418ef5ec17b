package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ry-diffusion/Tina/internal/config"
	"github.com/ry-diffusion/Tina/internal/daemon"
	"github.com/ry-diffusion/Tina/internal/paths"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// startTimeout covers the first run, when the engine's dependencies are
// installed before it is spawned.
const startTimeout = 5 * time.Minute

func main() {
	configFlag := flag.String("config", paths.ConfigPath(), "path to config.toml")
	dataDirFlag := flag.String("data-dir", "", "data directory (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *dataDirFlag != "" {
		cfg.DataDir = *dataDirFlag
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg}),
		fx.StartTimeout(startTimeout),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
	)

	app.Run()
}
