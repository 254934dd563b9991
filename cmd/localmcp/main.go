package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const version = "1.0.0"

func main() {
	// Load .env
	_ = godotenv.Load()

	cfg := initConfig()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "dashboard":
		runDashboard(cfg)
	case "sql":
		runSQL(cfg)
	case "slack":
		runSlack(cfg)
	case "telegram":
		runTelegram(cfg)
	case "model":
		runModel(cfg)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `localmcp - local MCP services and dashboard

Usage:
  localmcp dashboard [--port PORT]           Health and tool dashboard
  localmcp sql [--port PORT] [--stdio]       SQLite MCP adapter
  localmcp slack [--port PORT] [--stdio]     Slack MCP adapter
  localmcp telegram [--port PORT] [--stdio]  Telegram MCP adapter
  localmcp model [--port PORT]               Model-serving gateway
`)
}
