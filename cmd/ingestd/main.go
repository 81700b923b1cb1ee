// Package main provides the ingestd binary: the observation-ingestion
// platform's entrypoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/meteo-concept/ingestd/internal/app"
	"github.com/meteo-concept/ingestd/internal/constants"
	"github.com/meteo-concept/ingestd/internal/log"
	"github.com/meteo-concept/ingestd/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ingestd %s (%s/%s)\n", constants.Version, runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	provider, err := config.NewYAMLProvider(*cfgFile)
	if err != nil {
		log.Errorf("failed to load configuration: %v", err)
		os.Exit(1)
	}
	defer provider.Close()

	application := app.New(provider)
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("application error: %v", err)
		os.Exit(1)
	}
}
