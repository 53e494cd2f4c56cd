package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"

	"github.com/Mindburn-Labs/attach/pkg/attach"
)

// runStoreCmd implements `attach store <path|url> <uri>`.
func runStoreCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	configPath, rest, ok := commandFlags("store", args, stderr)
	if !ok {
		return 2
	}
	if len(rest) != 2 {
		_, _ = fmt.Fprintln(stderr, "Usage: attach store [-config file] <path|url> <uri>")
		return 2
	}
	dest, err := attach.ParseURI(rest[1])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	r, err := openRegistry(ctx, configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	src, done, err := loadArg(ctx, r, rest[0])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: load %s: %v\n", rest[0], err)
		return 1
	}
	defer done()
	stored, err := r.Store(ctx, src, dest)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: store: %v\n", err)
		return 1
	}
	return report(ctx, stdout, stderr, stored)
}

// runInfoCmd implements `attach info <uri>`. Images also report their
// dimensions and capture time.
func runInfoCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r, uri, _, code := reloadArgs(ctx, "info", args, 1, stderr)
	if r == nil {
		return code
	}
	src, code := reloadValid(ctx, r, uri, stderr)
	if src == nil {
		return code
	}
	out, err := r.Process(ctx, src, attach.TransformInfo)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: info: %v\n", err)
		return 1
	}
	return report(ctx, stdout, stderr, out)
}

// runProcessCmd implements `attach process <uri> <transform> <dest-uri>`.
// Transforms yield transient sources, so the result is always stored.
func runProcessCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r, uri, rest, code := reloadArgs(ctx, "process", args, 3, stderr)
	if r == nil {
		return code
	}
	dest, err := attach.ParseURI(rest[2])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	src, code := reloadValid(ctx, r, uri, stderr)
	if src == nil {
		return code
	}
	out, err := r.Process(ctx, src, rest[1])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: process %s: %v\n", rest[1], err)
		return 1
	}
	stored, err := r.Store(ctx, out, dest)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: store: %v\n", err)
		return 1
	}
	return report(ctx, stdout, stderr, stored)
}

// runDestroyCmd implements `attach destroy <uri>`. Destroying a missing
// payload succeeds.
func runDestroyCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r, uri, _, code := reloadArgs(ctx, "destroy", args, 1, stderr)
	if r == nil {
		return code
	}
	src, err := r.Reload(ctx, uri, attach.Metadata{})
	if errors.Is(err, attach.ErrMissingSource) {
		_, _ = fmt.Fprintf(stdout, "already gone %s\n", uri.Redacted())
		return 0
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: reload: %v\n", err)
		return 1
	}
	if err := r.Destroy(ctx, src); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: destroy: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "destroyed %s\n", uri.Redacted())
	return 0
}

func runPresetsCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	configPath, _, ok := commandFlags("presets", args, stderr)
	if !ok {
		return 2
	}
	r, err := openRegistry(ctx, configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	presets := r.Presets()
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, name := range presets.Names() {
		g, _ := presets.Lookup(name)
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", name, g)
	}
	_ = tw.Flush()
	return 0
}

// reloadArgs parses flags, checks for want positional arguments and opens
// the registry. The first positional argument is also returned parsed. On
// failure the registry is nil and code is the exit code.
func reloadArgs(ctx context.Context, name string, args []string, want int, stderr io.Writer) (*attach.Registry, *url.URL, []string, int) {
	configPath, rest, ok := commandFlags(name, args, stderr)
	if !ok {
		return nil, nil, nil, 2
	}
	if len(rest) != want {
		_, _ = fmt.Fprintf(stderr, "Usage: attach %s [-config file] %s\n", name, usageArgs[name])
		return nil, nil, nil, 2
	}
	uri, err := attach.ParseURI(rest[0])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, nil, nil, 2
	}
	r, err := openRegistry(ctx, configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, nil, nil, 2
	}
	return r, uri, rest, 0
}

var usageArgs = map[string]string{
	"info":    "<uri>",
	"process": "<uri> <transform> <dest-uri>",
	"destroy": "<uri>",
}

func reloadValid(ctx context.Context, r *attach.Registry, uri *url.URL, stderr io.Writer) (attach.Source, int) {
	src, err := r.Reload(ctx, uri, attach.Metadata{})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: reload: %v\n", err)
		return nil, 1
	}
	if !src.Valid(ctx) {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", src.Err())
		return nil, 1
	}
	return src, 0
}

func report(ctx context.Context, stdout, stderr io.Writer, src attach.Source) int {
	if err := printMetadata(ctx, stdout, src); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
