package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/hlsproxy/internal/cache"
	"github.com/jmylchreest/hlsproxy/internal/codec"
	"github.com/jmylchreest/hlsproxy/internal/config"
	"github.com/jmylchreest/hlsproxy/internal/downloader"
	internalhttp "github.com/jmylchreest/hlsproxy/internal/http"
	"github.com/jmylchreest/hlsproxy/internal/http/handlers"
	"github.com/jmylchreest/hlsproxy/internal/httpclient"
	"github.com/jmylchreest/hlsproxy/internal/observability"
	"github.com/jmylchreest/hlsproxy/internal/track"
	"github.com/jmylchreest/hlsproxy/internal/urlutil"
	"github.com/jmylchreest/hlsproxy/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hlsproxy server",
	Long: `Start the hlsproxy HTTP server.

The server provides:
- /playlist for master playlist rewriting
- /media for media playlist rewriting, tracking, and pre-warming
- /stream for cached segment delivery with Range support
- /health for liveness and cache occupancy`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen-addr", ":8080", "Address to bind to")
	serveCmd.Flags().String("base-url", "", "Public base URL used in rewritten playlists")
	serveCmd.Flags().String("size-limit", "", "Cache admission cap, e.g. 512MB")
	serveCmd.Flags().Int("download-threads", 0, "Parallel range connections per segment download")

	mustBindPFlag("server.listen_addr", serveCmd.Flags().Lookup("listen-addr"))
	mustBindPFlag("server.base_url", serveCmd.Flags().Lookup("base-url"))
	mustBindPFlag("cache.size_limit", serveCmd.Flags().Lookup("size-limit"))
	mustBindPFlag("cache.download_threads", serveCmd.Flags().Lookup("download-threads"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.Default()

	selector, err := httpclient.NewProxySelector(cfg.HTTP.Proxy, cfg.HTTP.Proxies)
	if err != nil {
		return fmt.Errorf("building proxy selector: %w", err)
	}
	if selector.Empty() {
		selector = nil
	}

	// Two outbound clients: playlists benefit from compressed transfer,
	// segment downloads must see raw bytes so range offsets line up.
	playlistCfg := httpclient.DefaultConfig()
	playlistCfg.Timeout = cfg.HTTP.Timeout
	playlistCfg.ProxySelector = selector
	playlistCfg.Logger = observability.WithComponent(logger, "httpclient")
	if cfg.HTTP.UserAgent != "" {
		playlistCfg.UserAgent = cfg.HTTP.UserAgent
	}
	playlistClient := httpclient.New(playlistCfg)

	segmentCfg := playlistCfg
	segmentCfg.EnableDecompression = false
	segmentClient := httpclient.New(segmentCfg)

	dl := downloader.New(segmentClient, cfg.Cache.DownloadThreads,
		observability.WithComponent(logger, "downloader"))

	cachePool := cache.NewPool(cache.Config{
		SizeLimit: cfg.Cache.SizeLimit.Bytes(),
		TTL:       cfg.Cache.Expire,
		Threads:   cfg.Cache.DownloadThreads,
		Loader:    dl,
		Logger:    observability.WithComponent(logger, "cache"),
	})
	defer cachePool.Close()

	parser := codec.NewParser(0)

	trackPool := track.NewPool(track.Config{
		TTL:      cfg.Track.Expire,
		Interval: cfg.Track.Interval,
		Client:   playlistClient,
		Parser:   parser,
		Cache:    cachePool,
		Logger:   observability.WithComponent(logger, "track"),
	})
	defer trackPool.Close()

	server := internalhttp.NewServer(internalhttp.ServerConfig{
		ListenAddr:      cfg.Server.ListenAddr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	proxy := handlers.NewProxy(
		urlutil.NormalizeBaseURL(cfg.Server.BaseURL),
		playlistClient,
		parser,
		cachePool,
		trackPool,
		observability.WithComponent(logger, "handlers"),
	)
	proxy.Routes(server.Router())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting hlsproxy server",
		slog.String("listen_addr", cfg.Server.ListenAddr),
		slog.String("base_url", cfg.Server.BaseURL),
		slog.String("size_limit", cfg.Cache.SizeLimit.String()),
		slog.Int("download_threads", cfg.Cache.DownloadThreads),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

// loadConfig decodes and validates the viper state assembled by initConfig.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Unmarshal(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
