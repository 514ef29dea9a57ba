package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/pkce-front/internal"
	"github.com/dgellow/pkce-front/internal/config"
	"github.com/dgellow/pkce-front/internal/log"
	"github.com/joho/godotenv"
)

var BuildVersion = "dev"

func main() {
	conf := flag.String("config", "", "path to config file with a backend section (required)")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the config")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		os.Exit(1)
	}

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.LogWarn("Failed to load %s: %v", *envFile, err)
	}

	cfg, err := config.LoadBackend(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting pkce-backend", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	b, err := internal.NewBackend(cfg)
	if err != nil {
		log.LogError("Failed to create backend: %v", err)
		os.Exit(1)
	}

	if err := b.Run(); err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}
