package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vaibhaw-/anomr/internal/anomr/logger"
	loadr "github.com/vaibhaw-/anomr/internal/loadr"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "load":
		loadCmd := flag.NewFlagSet("load", flag.ExitOnError)
		configPath := loadCmd.String("config", "", "Path to config file")
		logLevel := loadCmd.String("log-level", "info", "Log level")
		loadCmd.Parse(os.Args[2:])
		requireConfig(loadCmd, *configPath)
		initLogger(*logLevel)
		if err := loadr.Load(*configPath); err != nil {
			fail(err)
		}

	case "run":
		runCmd := flag.NewFlagSet("run", flag.ExitOnError)
		configPath := runCmd.String("config", "", "Path to config file")
		logLevel := runCmd.String("log-level", "info", "Log level")
		runCmd.Parse(os.Args[2:])
		requireConfig(runCmd, *configPath)
		initLogger(*logLevel)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		stats, err := loadr.Run(ctx, *configPath)
		if err != nil && ctx.Err() == nil {
			fail(err)
		}
		fmt.Printf("select=%d insert=%d update=%d errors=%d failed_logins=%d\n",
			stats.Select, stats.Insert, stats.Update, stats.Errors, stats.FailedLogins)

	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Printf("Unknown subcommand: %s\n\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

func requireConfig(fs *flag.FlagSet, path string) {
	if path == "" {
		fmt.Printf("Error: --config is required for '%s'\n", fs.Name())
		fs.Usage()
		os.Exit(1)
	}
}

func initLogger(level string) {
	if err := logger.InitLogger(logger.LogConfig{Level: level, ConsoleLevel: level}); err != nil {
		fail(err)
	}
}

func fail(err error) {
	logger.Sync()
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printHelp() {
	fmt.Println(`Usage: loadr <subcommand> --config <path>`)
	fmt.Println()
	fmt.Println("Subcommands:")
	fmt.Println("  load    --config <path>   Generate the demo database SQL script")
	fmt.Println("  run     --config <path>   Drive audited traffic (and optional brute-force bursts) against PostgreSQL")
	fmt.Println("  help                      Show this help message")
}
