/*
Package fastlymcp is a Model Context Protocol server that gives an AI client two tools over the Fastly platform.

The client never sees the API credential. The server reads it from its own environment and attaches it to every outbound call on the client's behalf.

# Tools

  - fastly_api: a passthrough to the Fastly REST API. The client supplies method, path, query params and a JSON body; the server injects the Fastly-Key header and returns status, headers and the parsed body.
  - fastly_cli: runs a fastly CLI command. The token is passed through the subprocess environment and referenced by the shell script, so it never appears on a command line.

Every tool result is a single text item. Failures are results too, marked with isError, so a client can read them without special casing.

# Usage

Build a Bridge from the configuration and serve it over stdio:

	package main

	import (
		"context"
		"log"
		"os"

		fastlymcp "github.com/aretw0/fastly-mcp"
	)

	func main() {
		cfg, err := fastlymcp.LoadConfig("")
		if err != nil {
			log.Fatal(err)
		}

		bridge, err := fastlymcp.New(cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer bridge.Close()

		if err := bridge.ServeStdio(context.Background(), os.Stdin, os.Stdout); err != nil {
			log.Fatal(err)
		}
	}

The same Bridge serves HTTP through Handler, which also exposes /metrics and /healthz.
*/
package fastlymcp
