package main

import (
	"flag"
	"fmt"
	"os"
)

// Set via ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/purify/config.yml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	cmd := "serve"
	args := flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	if cmd == "version" {
		printVersion()
		return
	}
	if cmd == "help" {
		usage()
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "serve":
		err = runServer(cfg)
	case "relay":
		err = runRelay(cfg, args)
	case "clean":
		err = runClean(cfg, args, os.Stdin, os.Stdout)
	case "mcp":
		err = runMCP(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("purify %s (commit %s, built %s)\n", version, commit, date)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: purify [-config path] <command> [args]

Commands:
  serve              serve GET/POST /companies and the relay job API (default)
  relay [-mode m]    fetch /companies from relay-url and post it back (append|replace)
  clean [names...]   print the canonical form of each name (stdin when none given)
  mcp                run the MCP server on stdio
  version            print version
`)
	flag.PrintDefaults()
}
