package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	openapi3 "github.com/getkin/kin-openapi/openapi3"

	"github.com/volantvm/mavproxy/internal/mavproxy/httpapi"
)

func main() {
	var (
		outPath   string
		serverURL string
	)

	flag.StringVar(&outPath, "output", "", "Output path (default stdout)")
	flag.StringVar(&serverURL, "server", "http://127.0.0.1:6040", "Server URL to include in OpenAPI servers list")
	flag.Parse()

	spec, err := httpapi.BuildOpenAPISpec("")
	if err != nil {
		fatalf("build openapi: %v", err)
	}

	serverURL = strings.TrimSpace(serverURL)
	if serverURL != "" {
		spec.Servers = openapi3.Servers{&openapi3.Server{URL: serverURL}}
	}

	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		fatalf("marshal json: %v", err)
	}

	if outPath == "" {
		_, _ = os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		fatalf("write %s: %v", outPath, err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
