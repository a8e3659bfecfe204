package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qepting91/reddit-promo-scout/internal/classifier"
	"github.com/qepting91/reddit-promo-scout/internal/collector"
	"github.com/qepting91/reddit-promo-scout/internal/config"
	"github.com/qepting91/reddit-promo-scout/internal/domain"
	"github.com/qepting91/reddit-promo-scout/internal/export"
	"github.com/qepting91/reddit-promo-scout/internal/logging"
	"github.com/qepting91/reddit-promo-scout/internal/orchestrator"
	"github.com/qepting91/reddit-promo-scout/internal/server"
	"github.com/qepting91/reddit-promo-scout/internal/storage"
)

type app struct {
	cfg     *config.Config
	logger  *logrus.Entry
	store   storage.Gateway
	orch    *orchestrator.Orchestrator
	closers []func() error
}

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "search":
		err = runSearch(args)
	default:
		err = fmt.Errorf("unknown command %q (want serve or search)", cmd)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "promoscout:", err)
		os.Exit(1)
	}
}

func setup(configFile string) (*app, error) {
	config.LoadDotEnvs()
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log)

	store, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, store: store, closers: []func() error{store.Close}}
	logger.WithField("type", cfg.Storage.Type).Info("storage ready")

	client, err := collector.NewCollector(cfg.Reddit, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init collector: %w", err)
	}
	logger.WithField("mode", cfg.Reddit.Mode).Info("collector initialized")

	if cfg.Cache.Enabled {
		cache := collector.NewRedisCache(cfg.Cache.RedisOptions)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		perr := cache.Ping(ctx)
		cancel()
		if perr != nil {
			logger.WithError(perr).Warn("redis unreachable, continuing without cache")
			cache.Close()
		} else {
			a.closers = append(a.closers, cache.Close)
			client = collector.NewCachingCollector(client, cache, cfg.Cache.TTL, logger)
			logger.WithField("addr", cfg.Cache.Addr).Info("response cache enabled")
		}
	}

	a.orch = orchestrator.New(cfg.Search, client, classifier.New(cfg.Classifier), store, logger)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("close failed")
		}
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFile := fs.String("config", "", "path to a YAML config file")
	fs.Parse(args)

	a, err := setup(*configFile)
	if err != nil {
		return err
	}
	defer a.close()

	files, err := export.NewFileStore(a.cfg.Export.Store)
	if err != nil {
		return fmt.Errorf("init export store: %w", err)
	}

	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	api := server.New(a.orch, a.store, files, server.Options{
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		ExportMaxSize: a.cfg.Export.MaxSize,
	}, a.logger)

	srv := &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      api.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", srv.Addr).Info("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigChan:
		a.logger.WithField("signal", sig.String()).Info("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

func runSearch(args []string) error {
	var keywords, communities listFlag
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configFile := fs.String("config", "", "path to a YAML config file")
	fs.Var(&keywords, "k", "keyword (repeatable or comma separated)")
	fs.Var(&communities, "c", "community (repeatable or comma separated)")
	sort := fs.String("sort", "", "relevance, hot, new, top or comments")
	window := fs.String("time", "", "hour, day, week, month, year or all")
	limit := fs.Int("limit", 0, "maximum number of posts")
	minScore := fs.Int("min-score", 0, "minimum score")
	minComments := fs.Int("min-comments", 0, "minimum comment count")
	nsfw := fs.Bool("nsfw", false, "include NSFW posts")
	discover := fs.Bool("discover", false, "run the official-promotion discovery search")
	out := fs.String("out", "", "append classified posts as NDJSON to this file")
	fs.Parse(args)

	a, err := setup(*configFile)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var res *domain.SearchResult
	if *discover {
		res, err = a.orch.CollectPromotional(ctx, communities, *limit)
	} else {
		res, err = a.orch.Search(ctx, domain.SearchRequest{
			Keywords:    keywords,
			Communities: communities,
			Sort:        domain.Sort(*sort),
			TimeWindow:  domain.TimeWindow(*window),
			Limit:       *limit,
			MinScore:    *minScore,
			MinComments: *minComments,
			IncludeNSFW: *nsfw,
		})
	}
	if err != nil {
		return err
	}

	if *out != "" {
		if err := appendNDJSON(*out, res.Posts, a.logger); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func appendNDJSON(path string, posts []domain.ClassifiedPost, logger logrus.FieldLogger) error {
	resultQueue := make(chan domain.ClassifiedPost, 100)
	var writerWg sync.WaitGroup

	writer := &export.WriterService{FilePath: path, Logger: logger}
	writerWg.Add(1)
	go writer.Start(&writerWg, resultQueue)

	for _, p := range posts {
		resultQueue <- p
	}
	close(resultQueue)
	writerWg.Wait()

	if err := writer.Err(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.WithFields(logrus.Fields{"path": path, "posts": writer.Written()}).Info("results appended")
	return nil
}
