// Inspector is an ImGui tool for checking skeletons and clips: it loads a
// skeleton, plays one or two clips through a blend tree and shows the
// resulting bone poses.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/config"
	"github.com/Faultbox/midgard-rts/internal/engine/ui"
	"github.com/Faultbox/midgard-rts/internal/logger"
)

func main() {
	runtime.LockOSThread()

	sklPath := flag.String("skeleton", "", "Skeleton (.skl) to open")
	clipA := flag.String("anim", "", "Clip to play on the first leaf")
	clipB := flag.String("blend", "", "Clip to blend in on the second leaf")
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	backend, err := ui.NewBackend("Midgard RTS Inspector", 1280, 800)
	if err != nil {
		logger.Error("failed to open inspector", zap.Error(err))
		os.Exit(1)
	}

	app := NewApp(backend, cfg.Animation)
	if *sklPath != "" {
		app.OpenSkeleton(*sklPath)
	}
	if *clipA != "" {
		app.OpenClip(0, *clipA)
	}
	if *clipB != "" {
		app.OpenClip(1, *clipB)
	}
	app.Run()
}
