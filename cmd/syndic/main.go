// Command syndic answers questions about co-ownership documents.
//
// Usage:
//
//	syndic [-config syndic.toml] <command> [flags]
//
// Commands:
//
//	serve    run the web UI and JSON API
//	chat     interactive terminal chat
//	index    (re)build the document index and exit
//	extract  convert PDFs to text files
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/0xcro3dile/syndic-rag/internal/config"
)

func main() {
	global := flag.NewFlagSet("syndic", flag.ExitOnError)
	configPath := global.String("config", config.DefaultPath, "path to the TOML config file")
	global.Usage = usage
	global.Parse(os.Args[1:])

	if global.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[syndic] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, args)
	case "chat":
		err = runChat(ctx, cfg, args)
	case "index":
		err = runIndex(ctx, cfg, args)
	case "extract":
		err = runExtract(ctx, cfg, args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("[%s] %v", cmd, err)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: syndic [-config syndic.toml] <command> [flags]

Commands:
  serve    run the web UI and JSON API
  chat     interactive terminal chat
  index    (re)build the document index and exit
  extract  convert PDFs to text files

Run "syndic <command> -h" for command flags.
`)
}
