package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/vecdocs/internal/app"
	"github.com/xhad/vecdocs/internal/models"
	cfgPkg "github.com/xhad/vecdocs/pkg/config"
	"github.com/xhad/vecdocs/pkg/gdrive"
	"github.com/xhad/vecdocs/pkg/service"
	"golang.org/x/sync/errgroup"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

type options struct {
	configPath  string
	reset       bool
	noShell     bool
	concurrency int
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.BoolVar(&opts.reset, "reset", false, "Delete the collection before ingesting")
	flag.BoolVar(&opts.noShell, "no-shell", false, "Exit after ingesting instead of starting the search shell")
	flag.IntVar(&opts.concurrency, "concurrency", 0, "Parallel ingests (overrides cli.concurrency)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [file|url ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Error loading .env file: %v", err)
	}

	cfg, err := cfgPkg.LoadConfig(opts.configPath)
	if err != nil {
		log.Fatal(err)
	}
	if opts.concurrency > 0 {
		cfg.CLI.Concurrency = opts.concurrency
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		os.Exit(1)
	}

	// keep library logs out of the progress bars
	cfg.Log.Level = "warn"
	slog.SetDefault(cfg.Log.NewLogger(os.Stderr))

	if err := run(cfg, opts, flag.Args()); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(cfg *cfgPkg.Config, opts options, inputs []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var scraped int32
	a, err := app.Build(ctx, cfg, app.Options{
		OnScrape: func(string) { atomic.AddInt32(&scraped, 1) },
		OnAuthURL: func(url string) {
			color.Yellow("\nAuthorize Google Drive access by visiting:\n%s\n", url)
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()
	svc := a.Service

	if opts.reset {
		if err := svc.DeleteCollection(ctx); err != nil {
			return err
		}
		color.Green("✓ Collection %s deleted\n", svc.CollectionName())
	}

	if len(inputs) > 0 {
		ingestAll(ctx, svc, inputs, cfg.CLI.Concurrency)
		if n := atomic.LoadInt32(&scraped); n > 0 {
			color.Green("✓ Scraped %d pages\n", n)
		}
	}

	if opts.noShell {
		return nil
	}
	return shell(ctx, svc)
}

// ingestAll adds every input, files through OCR and URLs through the page
// loader. A failed input is reported and does not stop the others.
func ingestAll(ctx context.Context, svc *service.Service, inputs []string, concurrency int) {
	bar := getProgressBar(len(inputs), " Ingesting")
	var failed int32

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, input := range inputs {
		input := input
		g.Go(func() error {
			defer bar.Add(1)
			if err := ingest(ctx, svc, input); err != nil {
				atomic.AddInt32(&failed, 1)
				bar.Clear()
				color.Red("✗ %s: %s\n", input, describeError(err))
			}
			return nil
		})
	}
	g.Wait()
	bar.Finish()

	ok := len(inputs) - int(failed)
	color.Green("\n✓ Added %d of %d inputs to %s\n", ok, len(inputs), svc.CollectionName())
}

func ingest(ctx context.Context, svc *service.Service, input string) error {
	if urlRegex.MatchString(input) {
		_, err := svc.AddURL(ctx, models.AddURLRequest{URL: input})
		return err
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	name := filepath.Base(input)

	mimeType := mime.TypeByExtension(filepath.Ext(input))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	// plain text needs no conversion
	if strings.HasPrefix(mimeType, "text/plain") || strings.EqualFold(filepath.Ext(input), ".md") {
		_, err := svc.Add(ctx, models.AddRequest{Title: name, Text: string(data)})
		return err
	}

	_, err = svc.UploadAndAdd(ctx, models.Upload{Data: data, MimeType: mimeType, FileName: name})
	return err
}

func describeError(err error) string {
	var stageErr *gdrive.StageError
	if errors.As(err, &stageErr) {
		return fmt.Sprintf("OCR failed during %s: %v", stageErr.Stage, stageErr.Err)
	}
	return err.Error()
}

func shell(ctx context.Context, svc *service.Service) error {
	color.Cyan("\nSearch %s (paste a URL to add it, type 'exit' to quit)", svc.CollectionName())

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	title := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	for {
		userPrompt("\nQuery: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		if url := urlRegex.FindString(query); url != "" {
			spinner := getSpinner(" Loading " + url)
			resp, err := svc.AddURL(ctx, models.AddURLRequest{URL: url})
			spinner.Finish()
			if err != nil {
				color.Red("\nFailed to add URL: %v\n", err)
				continue
			}
			color.Green("\n✓ Added %d pages\n", len(resp.Data))
			continue
		}

		spinner := getSpinner(" Searching...")
		res, err := svc.Search(ctx, query)
		spinner.Finish()
		if err != nil {
			color.Red("\nError searching documents: %v\n", err)
			continue
		}

		fmt.Println()
		if len(res.IDs) == 0 || len(res.IDs[0]) == 0 {
			color.Yellow("No documents found.")
			continue
		}
		for i := range res.IDs[0] {
			meta := res.Metadatas[0][i]
			fmt.Printf("%d. %s %s\n", i+1, title(meta["title"]), faint(fmt.Sprintf("(distance %.4f)", res.Distances[0][i])))
			if src := meta["source"]; src != "" {
				fmt.Printf("   %s\n", faint(src))
			}
			fmt.Printf("   %s\n", snippet(res.Documents[0][i], 160))
		}
	}

	return scanner.Err()
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
