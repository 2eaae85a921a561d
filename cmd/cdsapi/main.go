package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitConfigError  = 3
	ExitAuthError    = 4
	ExitLicenceError = 5
	ExitEndpoint     = 6
	ExitJobFailed    = 7
	ExitTransport    = 8
)

const version = "0.2.0"

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
	case "retrieve":
		return runRetrieve(cmdArgs)
	case "check":
		return runCheck(cmdArgs)
	case "version":
		fmt.Println("cdsapi " + version)
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
	fmt.Fprintln(os.Stderr, `Usage: cdsapi <command> [options]

Commands:
  retrieve  Submit a dataset request, wait for completion and download the result
  check     Resolve and validate the configured credentials
  version   Print the client version

Run 'cdsapi <command> -h' for command-specific help.`)
}
