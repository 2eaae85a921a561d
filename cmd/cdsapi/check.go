package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hkwk/cdsapi/internal/auth"
	"github.com/hkwk/cdsapi/internal/config"
)

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)

	urlFlag := fs.String("url", "", "API base url (overrides environment and rc file)")
	key := fs.String("key", "", "API key (overrides environment and rc file)")
	rc := fs.String("rc", "", "Path to the rc file")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: cdsapi check [options]

Resolve the configured credentials and report which API dialect they select,
without contacting the service.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	creds, err := config.Resolve(config.Overrides{URL: *urlFlag, Key: *key, RCPath: *rc})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	mode, err := auth.Classify(creds.Key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	fmt.Printf("url:    %s\n", creds.URL)
	fmt.Printf("auth:   %s\n", mode.Name())
	fmt.Printf("verify: %v\n", creds.VerifyTLS)
	return ExitSuccess
}
