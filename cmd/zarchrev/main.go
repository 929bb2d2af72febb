// Command zarchrev is the CLI front end for the reverse-engineering
// pipeline: analyze a single binary, batch a directory of them into a
// portfolio, or print what the ingestor alone can tell about a file.
package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/ckillpk/zarchrev/ingest"
	"github.com/ckillpk/zarchrev/pipeline"
	"github.com/ckillpk/zarchrev/report"
)

func newLogger(c *cli.Context) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	switch {
	case c.GlobalBool("debug"):
		logger.SetLevel(logrus.DebugLevel)
	case c.GlobalBool("verbose"):
		logger.SetLevel(logrus.InfoLevel)
	default:
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

func analyzeFile(c *cli.Context, path, outDir string) error {
	logger := newLogger(c)

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("could not read %s: %v", path, err), 1)
	}

	p := pipeline.New()
	p.Logger = logger
	p.Progress = func(stage string) {
		fmt.Fprintf(os.Stderr, "  -> %s\n", stage)
	}

	result, err := p.ProcessFile(context.Background(), path, data)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("analysis failed: %v", err), 1)
	}

	validation := p.Validate(result)

	writer := report.New(outDir)
	if err := writer.WriteAll(result, validation); err != nil {
		return cli.NewExitError(fmt.Sprintf("could not write report: %v", err), 1)
	}

	fmt.Printf("%s: decode_rate=%.2f score=%.2f procedures=%d warnings=%d\n",
		filepath.Base(path), validation.DecodeRate, validation.Score,
		len(result.CFG.Procedures), len(result.Warnings))

	return nil
}

func batchDirectory(c *cli.Context, dir, outDir string) error {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("could not read %s: %v", dir, err), 1)
	}

	logger := newLogger(c)
	var portfolio []report.PortfolioEntry

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := ioutil.ReadFile(path)
		if err != nil {
			logger.WithError(err).Warnf("skipping %s", path)
			continue
		}

		p := pipeline.New()
		p.Logger = logger

		result, err := p.ProcessFile(context.Background(), path, data)
		if err != nil {
			logger.WithError(err).Warnf("skipping %s", path)
			continue
		}

		validation := p.Validate(result)

		moduleOutDir := filepath.Join(outDir, strings.ToLower(result.Metadata.Name))
		writer := report.New(moduleOutDir)
		if err := writer.WriteAll(result, validation); err != nil {
			logger.WithError(err).Warnf("could not write report for %s", path)
			continue
		}

		portfolio = append(portfolio, report.PortfolioEntry{
			Module:     result.Metadata.Name,
			Path:       path,
			Score:      validation.Score,
			DecodeRate: validation.DecodeRate,
			Warnings:   len(result.Warnings),
		})
	}

	indexWriter := report.New(outDir)
	if err := indexWriter.WritePortfolioIndex(portfolio); err != nil {
		return cli.NewExitError(fmt.Sprintf("could not write portfolio index: %v", err), 1)
	}

	fmt.Printf("processed %d modules into %s\n", len(portfolio), outDir)
	return nil
}

func infoFile(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("could not read %s: %v", path, err), 1)
	}

	ingestor := ingest.New()
	metadata, code, err := ingestor.Load(path, data)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("could not ingest %s: %v", path, err), 1)
	}

	fmt.Printf("Module      %s\n", metadata.Name)
	fmt.Printf("Format      %s\n", metadata.FormatType)
	fmt.Printf("AMODE       %d\n", metadata.AMODE)
	fmt.Printf("RMODE       %s\n", metadata.RMODE)
	if metadata.EntryPoint != nil {
		fmt.Printf("Entry point 0x%08X\n", *metadata.EntryPoint)
	}
	fmt.Printf("Code bytes  %d\n", len(code))
	for _, s := range metadata.Sections {
		fmt.Printf("Section     offset=0x%08X size=%d type=%s\n", s.Offset, s.Size, s.Type)
	}

	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "zarchrev"
	app.Usage = "Reverse-engineering engine for z/Architecture binaries"
	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		return nil
	}
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "verbose, v", Usage: "enable info-level logging"},
		cli.BoolFlag{Name: "debug", Usage: "enable debug-level logging"},
	}
	app.Commands = []cli.Command{
		{
			Name:      "analyze",
			Usage:     "Analyze a single binary artifact",
			ArgsUsage: "file [outDir]",
			Action: func(c *cli.Context) error {
				args := c.Args()
				if len(args) < 1 {
					return cli.NewExitError("insufficient arguments", 1)
				}
				outDir := "report"
				if len(args) >= 2 {
					outDir = args[1]
				}
				return analyzeFile(c, args[0], outDir)
			},
		},
		{
			Name:      "batch",
			Usage:     "Analyze every artifact in a directory and write a portfolio index",
			ArgsUsage: "dir [outDir]",
			Action: func(c *cli.Context) error {
				args := c.Args()
				if len(args) < 1 {
					return cli.NewExitError("insufficient arguments", 1)
				}
				outDir := "report"
				if len(args) >= 2 {
					outDir = args[1]
				}
				return batchDirectory(c, args[0], outDir)
			},
		},
		{
			Name:      "info",
			Usage:     "Print what ingestion alone recovers about an artifact",
			ArgsUsage: "file",
			Action: func(c *cli.Context) error {
				args := c.Args()
				if len(args) < 1 {
					return cli.NewExitError("insufficient arguments", 1)
				}
				return infoFile(args[0])
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
