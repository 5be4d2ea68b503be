package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"dbdeck/internal/app"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)
	pflag.StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to config file")
	pflag.BoolVar(&showVersion, "version", false, "print version and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println("dbdeck 1.0.0")
		return
	}

	if err := app.Serve(configPath); err != nil {
		log.Fatalf("dbdeck: %v", err)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".dbdeck", "config.yaml")
}
