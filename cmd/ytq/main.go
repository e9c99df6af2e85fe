package main

import (
	"fmt"
	"os"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

// Exit codes
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitInvalidArgs   = 2
	ExitRateLimited   = 3
	ExitCancelled     = 4
	ExitInvalidTarget = 5
	ExitConfigError   = 6
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "get":
		return runGet(cmdArgs)
	case "batch":
		return runBatch(cmdArgs)
	case "serve":
		return runServe(cmdArgs)
	case "partials":
		return runPartials(cmdArgs)
	case "version":
		fmt.Printf("ytq %s\n", version)
		return ExitSuccess
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: ytq <command> [options]

Commands:
  get       Download one video, resuming a partial file when possible
  batch     Download every target listed in a file, one after another or through the queue
  serve     Run the job queue behind an HTTP API
  partials  List interrupted downloads and the best one to resume
  version   Print the version

Run 'ytq <command> -h' for command-specific help.

Exit codes:
  0 success, 1 failure, 2 invalid arguments, 3 rate limited,
  4 cancelled, 5 invalid target, 6 configuration error`)
}
