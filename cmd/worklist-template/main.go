package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/maltedev/catalog-crawler/internal/worklist"
)

func main() {
	var (
		out     = flag.String("out", "worklist.xlsx", "Template file to create (.xlsx or .json)")
		urlFile = flag.String("urls", "", "File with one product URL per line (defaults to sample URLs)")
		force   = flag.Bool("force", false, "Overwrite an existing file")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if _, err := os.Stat(*out); err == nil && !*force {
		logger.Error("File already exists, use -force to overwrite", "path", *out)
		os.Exit(1)
	}

	urls := worklist.SampleURLs()
	if *urlFile != "" {
		var err error
		urls, err = readURLs(*urlFile)
		if err != nil {
			logger.Error("Failed to read URLs", "path", *urlFile, "error", err)
			os.Exit(1)
		}
	}

	if err := worklist.CreateTemplate(*out, urls); err != nil {
		logger.Error("Failed to create template", "path", *out, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Created %s with %d URLs\n", *out, len(urls))
}

func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
