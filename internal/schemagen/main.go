package main

import (
	"flag"
	"log"
	"os"

	"github.com/macropower/dotup/pkg/config"
	"github.com/macropower/dotup/pkg/schema"
)

var outFile = flag.String("o", "schema.json", "Output file for the generated schema")

func main() {
	flag.Parse()

	gen := schema.NewGenerator(config.NewConfig(),
		"github.com/macropower/dotup/pkg/config",
		"github.com/macropower/dotup/pkg/dotfiles",
		"github.com/macropower/dotup/pkg/execs",
		"github.com/macropower/dotup/pkg/journal",
		"github.com/macropower/dotup/pkg/keys",
		"github.com/macropower/dotup/pkg/manager",
		"github.com/macropower/dotup/pkg/prompt",
		"github.com/macropower/dotup/pkg/rule",
		"github.com/macropower/dotup/pkg/ui",
		"github.com/macropower/dotup/pkg/updater",
	)

	jsData, err := gen.Generate()
	if err != nil {
		log.Fatalf("generate JSON schema: %v", err)
	}

	err = os.WriteFile(*outFile, jsData, 0o600)
	if err != nil {
		log.Fatalf("write schema file: %v", err)
	}
}
