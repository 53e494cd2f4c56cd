package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mindburn-Labs/attach/pkg/attach"
	"github.com/Mindburn-Labs/attach/pkg/config"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
//
// Exit codes:
//
//	0 = success
//	1 = operation failed
//	2 = usage or configuration error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[1] {
	case "store":
		return runStoreCmd(ctx, args[2:], stdout, stderr)
	case "info":
		return runInfoCmd(ctx, args[2:], stdout, stderr)
	case "process":
		return runProcessCmd(ctx, args[2:], stdout, stderr)
	case "destroy":
		return runDestroyCmd(ctx, args[2:], stdout, stderr)
	case "presets":
		return runPresetsCmd(ctx, args[2:], stdout, stderr)
	case "schemes":
		for _, s := range attach.Schemes() {
			if s == "" {
				s = "(none)"
			}
			_, _ = fmt.Fprintln(stdout, s)
		}
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorCyan  = "\033[36m"
	colorGreen = "\033[32m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	_, _ = fmt.Fprintln(w, "  attach <command> [-config file.yaml] [args]")
	_, _ = fmt.Fprintln(w, "")
	printSection(w, "SOURCES")
	printCommand(w, "store", "Copy a local path or http(s) URL to a URI")
	printCommand(w, "info", "Print the metadata of the source at a URI")
	printCommand(w, "process", "Apply a transform and store the result")
	printCommand(w, "destroy", "Release the storage behind a URI")
	printSection(w, "REGISTRY")
	printCommand(w, "presets", "List resize presets")
	printCommand(w, "schemes", "List supported URI schemes")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", colorBold+colorCyan, title, colorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-10s%s %s\n", colorGreen, name, colorReset, desc)
}

// commandFlags parses the flags every subcommand shares and returns the
// positional arguments.
func commandFlags(name string, args []string, stderr io.Writer) (configPath string, rest []string, ok bool) {
	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cmd.StringVar(&configPath, "config", "", "YAML configuration overlay (default: environment only)")
	if err := cmd.Parse(args); err != nil {
		return "", nil, false
	}
	return configPath, cmd.Args(), true
}

func openRegistry(ctx context.Context, configPath string) (*attach.Registry, error) {
	var cfg *config.Config
	if configPath == "" {
		cfg = config.Load()
	} else {
		var err error
		if cfg, err = config.LoadFile(configPath); err != nil {
			return nil, err
		}
	}
	return attach.NewFromConfig(ctx, cfg)
}

func printMetadata(ctx context.Context, w io.Writer, src attach.Source) error {
	md, err := src.Metadata(ctx)
	if err != nil {
		return err
	}
	out := struct {
		URI       string          `json:"uri,omitempty"`
		PublicURI string          `json:"public_uri,omitempty"`
		Valid     bool            `json:"valid"`
		Metadata  attach.Metadata `json:"metadata"`
	}{Valid: src.Valid(ctx), Metadata: md}
	if u := src.URI(); u != nil {
		out.URI = u.String()
	}
	if u := src.PublicURI(); u != nil {
		out.PublicURI = u.String()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// loadArg turns a command-line argument into a Source: http(s) URLs by
// reference, anything else as a local file.
func loadArg(ctx context.Context, r *attach.Registry, arg string) (attach.Source, func(), error) {
	u, err := attach.ParseURI(arg)
	if err != nil {
		return nil, nil, err
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		src, err := r.Load(ctx, attach.Reference{URI: u}, attach.Metadata{})
		return src, func() {}, err
	}
	f, err := os.Open(arg)
	if err != nil {
		return nil, nil, err
	}
	src, err := r.Load(ctx, attach.File{File: f}, attach.Metadata{})
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return src, func() { _ = f.Close() }, nil
}
