// Command gen-docs writes the OpenAPI document for the operation registry.
package main

import (
	"flag"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"grimm.is/speedctl/internal/api/openapi"
	"grimm.is/speedctl/internal/brand"
	"grimm.is/speedctl/internal/i18n"
	"grimm.is/speedctl/internal/operation"
)

var Printer = i18n.NewCLIPrinter()

func main() {
	path := flag.String("o", "docs/openapi.yaml", "Output file")
	flag.Parse()

	doc := openapi.Generate(operation.Default(), brand.Version)

	if err := os.MkdirAll(filepath.Dir(*path), 0755); err != nil {
		Printer.Printf("Failed to create dir: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create(*path)
	if err != nil {
		Printer.Printf("Failed to create file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	if err := enc.Encode(doc); err != nil {
		Printer.Printf("Failed to encode YAML: %v\n", err)
		os.Exit(1)
	}
	enc.Close()

	Printer.Printf("Successfully generated %s\n", *path)
}
