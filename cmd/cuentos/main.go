package main

import (
	"fmt"
	"log/slog"
	"os"
)

var version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return 0
	}

	sub := args[0]
	switch sub {
	case "serve":
		if err := cmdServe(args[1:]); err != nil {
			slog.Error("serve failed", "err", err)
			return 1
		}
		return 0
	case "story":
		if err := cmdStory(args[1:]); err != nil {
			slog.Error("story failed", "err", err)
			return 1
		}
		return 0
	case "themes":
		for _, t := range themeList() {
			fmt.Println(t)
		}
		return 0
	case "version":
		fmt.Println(version)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n\n", sub)
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cuentos %s

Usage:
  cuentos <subcommand> [flags]

Subcommands:
  serve    Run the web app and POST /api/generate
  story    Generate one narrated story into out/YYYY/MM/DD/
  themes   List the available story themes
  version  Print version

Run "cuentos <subcommand> -h" for flags.
`, version)
}
