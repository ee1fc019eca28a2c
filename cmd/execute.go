// Package cmd contains the CLI entry points: serve, seed, and version.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/innofolio/innofolio/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.1.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point for the innofolio binary. It routes the
// first argument to a subcommand; special flags work even when config is
// invalid.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			return printVersionInfo()
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "serve":
			return runServe()
		case "seed":
			return runSeed()
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	// Default behavior is serving the API.
	return runServe()
}

// initLogger initializes the structured logger. Log level is controlled by
// the DEBUG environment variable: set (any value) means debug, unset means
// info.
func initLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: true})
}

// checkRequiredEnv verifies required environment variables, returning a
// user-friendly error with setup instructions when one is missing.
func checkRequiredEnv() error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "InnoFolio requires a Gemini API key to function.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "To set your API key:")
		fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Get your API key at: https://ai.google.dev/")

		return fmt.Errorf("GEMINI_API_KEY not set")
	}
	return nil
}

func printHelp() {
	fmt.Println("InnoFolio - AI career coaching backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  innofolio serve [addr]   Start the HTTP API server (default)")
	fmt.Println("  innofolio seed           Seed the knowledge base")
	fmt.Println("  innofolio version        Show version information")
	fmt.Println("  innofolio help           Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY           Required: Gemini API key")
	fmt.Println("  INNOFOLIO_*              Optional: config overrides (~/.innofolio/config.yaml)")
	fmt.Println("  DEBUG                    Optional: enable debug logging")
}
