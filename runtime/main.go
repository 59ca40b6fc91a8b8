package main

import (
	"flag"

	"ShadowTerrain/internal/config"
	"ShadowTerrain/internal/engine"
	"ShadowTerrain/internal/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "JSON or YAML config file (defaults are used when empty)")
	backend := flag.String("backend", "", "override the backend: opengl or headless")
	frames := flag.Int("frames", -1, "frames to render with the headless backend")
	flag.Parse()

	logger.Init()
	defer logger.Sync()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Log.Fatal("Could not load config", zap.String("path", *configPath), zap.Error(err))
		}
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *frames >= 0 {
		cfg.Headless.Frames = *frames
	}
	logger.InitWithConfig(cfg.Log)

	logger.Log.Info("ShadowTerrain starting",
		zap.String("backend", cfg.Backend),
		zap.Int("frameDepth", cfg.FrameDepth),
		zap.Int("shadowMapSize", cfg.ShadowMapSize))

	if err := engine.Run(cfg); err != nil {
		logger.Log.Fatal("Renderer stopped", zap.Error(err))
	}
	logger.Log.Info("ShadowTerrain exited cleanly")
}
