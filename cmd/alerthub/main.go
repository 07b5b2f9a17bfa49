package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"alerthub/internal/app"
	"alerthub/internal/clock"
)

// main starts the AlertHub service.
// Params: CLI flag --config-file.
// Returns: process exit code by startup/run result.
func main() {
	configFile := flag.String("config-file", "alerthub.toml", "path to the TOML config file")
	flag.Parse()

	service, err := app.NewService(*configFile, clock.RealClock{})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service init failed:", err.Error())
		os.Exit(1)
	}

	if err := service.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service run failed:", err.Error())
		os.Exit(1)
	}
}
