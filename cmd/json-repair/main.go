package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/maltedev/catalog-crawler/internal/catalog"
	"github.com/maltedev/catalog-crawler/internal/logger"
	"github.com/maltedev/catalog-crawler/internal/repair"
)

func main() {
	var (
		attempts  = flag.Int("attempts", repair.DefaultMaxAttempts, "Maximum parse attempts")
		diagDir   = flag.String("diagnostics", os.TempDir(), "Directory for failure diagnostics")
		normalize = flag.Bool("normalize", false, "Map the object onto the catalog schema")
		legacy    = flag.Bool("legacy-braces", false, "Count braces inside strings when finding the object")
		verbose   = flag.Bool("v", false, "Log repair steps to stderr")
	)
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.New(os.Stderr, level, "text")

	input, err := readInput(flag.Arg(0))
	if err != nil {
		log.Error("Failed to read input", "error", err)
		os.Exit(1)
	}

	engine, err := repair.New(repair.Config{
		MaxAttempts:         *attempts,
		DiagnosticDir:       *diagDir,
		LegacyBraceCounting: *legacy,
		Logger:              log,
	})
	if err != nil {
		log.Error("Invalid options", "error", err)
		os.Exit(2)
	}

	res, err := engine.RepairDetailed(string(input))
	if err != nil {
		var uerr *repair.UnparseableError
		if errors.As(err, &uerr) && uerr.DiagnosticPath != "" {
			log.Error("Repair failed", "attempts", uerr.Attempts, "diagnostic", uerr.DiagnosticPath, "error", err)
		} else {
			log.Error("Repair failed", "error", err)
		}
		os.Exit(1)
	}

	var out any = res.Value
	if *normalize {
		rec, err := catalog.Normalize(res.Value)
		if err != nil {
			log.Error("Failed to normalize", "error", err)
			os.Exit(1)
		}
		out = rec
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
		os.Exit(1)
	}
}

// readInput reads the named file, or stdin when name is empty or "-".
func readInput(name string) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}
