package main

import (
	"fmt"
	"os"

	pkgversion "github.com/mkorchagin/guestlink/pkg/version"
)

// Build-time variables (set via -ldflags)
var (
	version   = ""        // Set via -ldflags "-X main.version=x.y.z"
	gitCommit = "unknown" // Set via -ldflags "-X main.gitCommit=..."
)

func getVersion() string {
	if version != "" {
		return version
	}
	return pkgversion.String()
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch command := os.Args[1]; command {
	case "demo":
		demoCommand()
	case "version":
		fmt.Printf("guestlink version %s\n", getVersion())
		if gitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", gitCommit)
		}
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`guestlink - secure host/guest agent channel

USAGE:
    guestlink <command> [options]

COMMANDS:
    demo      Run an in-process host+guest demo over a pipe
    version   Print version information
    help      Show this help message

EXAMPLES:
    # Exchange a ping over an in-memory channel
    guestlink demo

    # Load engine settings from a TOML file
    guestlink demo --config channel.toml --log-level debug`)
}
