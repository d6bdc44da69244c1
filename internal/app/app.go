// Package app builds the component graph shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xhad/vecdocs/internal/types"
	"github.com/xhad/vecdocs/pkg/config"
	"github.com/xhad/vecdocs/pkg/gdrive"
	"github.com/xhad/vecdocs/pkg/llm"
	"github.com/xhad/vecdocs/pkg/processor"
	"github.com/xhad/vecdocs/pkg/scraper"
	"github.com/xhad/vecdocs/pkg/service"
	"github.com/xhad/vecdocs/pkg/store"
)

type App struct {
	Service  *service.Service
	Store    types.VectorStore
	Embedder *llm.Embedder
}

type Options struct {
	// OnScrape is called for every page the loader fetches.
	OnScrape func(url string)
	// OnAuthURL receives the Drive consent URL when no token is saved.
	OnAuthURL func(url string)
}

func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	emb, err := llm.NewEmbedderWithConfig(ctx, llm.EmbedderConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		Token:    cfg.Embedding.Token,
		BaseURL:  cfg.Embedding.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vs, err := openStore(cfg, emb)
	if err != nil {
		emb.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	auth := gdrive.NewAuthorizer(gdrive.AuthConfig{
		CredentialsPath: cfg.Drive.CredentialsPath,
		TokenPath:       cfg.Drive.TokenPath,
		Scopes:          cfg.Drive.Scopes,
		RedirectAddr:    cfg.Drive.RedirectAddr,
		OnAuthURL:       opts.OnAuthURL,
	})
	ocr := gdrive.NewWithConfig(gdrive.OCRConfig{Endpoint: cfg.Drive.Endpoint}, auth)

	sc := scraper.NewWithConfig(scraper.ScraperConfig{
		MaxDepth:       cfg.Scraper.MaxDepth,
		RateLimit:      cfg.Scraper.RateLimit,
		IgnorePatterns: cfg.Scraper.Ignore,
		Timeout:        time.Duration(cfg.Scraper.TimeoutSecs) * time.Second,
		OnProgress:     opts.OnScrape,
	})

	svc := service.NewWithConfig(service.ServiceConfig{
		Collection:  cfg.Store.Collection,
		SearchLimit: cfg.Store.SearchLimit,
	}, vs, ocr, sc, processor.NewWithConfig(processor.ProcessorConfig{}))

	return &App{Service: svc, Store: vs, Embedder: emb}, nil
}

func openStore(cfg *config.Config, emb types.Embedder) (types.VectorStore, error) {
	sc := store.VectorStoreConfig{Backend: cfg.Store.Backend}
	sc.Chromem.Path = cfg.Store.Chromem.Path
	sc.Chromem.Compress = cfg.Store.Chromem.Compress
	sc.PGVector.ConnString = cfg.Store.PGVector.URL
	sc.PGVector.TablePrefix = cfg.Store.PGVector.TablePrefix
	sc.PGVector.VectorDim = cfg.Store.PGVector.VectorDim
	return store.New(sc, emb)
}

func (a *App) Close() error {
	return errors.Join(a.Store.Close(), a.Embedder.Close())
}
