// Package app builds the collaborators shared by the server and the CLI from
// loaded configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"tunefetch/internal/cache"
	"tunefetch/internal/catalog"
	"tunefetch/internal/config"
	"tunefetch/internal/domain"
	"tunefetch/internal/logging"
	"tunefetch/internal/matching"
	"tunefetch/internal/mediasource"
	"tunefetch/internal/storage"
)

const musicIndexTimeout = 20 * time.Second

func Logger(cfg config.Config) (*logrus.Logger, func() error, error) {
	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, nil, err
	}
	return logger, closer.Close, nil
}

// MatchingConfig overlays configured weights on the engine defaults. Zero
// values keep the default.
func MatchingConfig(cfg config.Config) matching.Config {
	mc := matching.DefaultConfig()
	m := cfg.Matching
	if m.Threshold > 0 {
		mc.Threshold = m.Threshold
	}
	if m.TitleWeight+m.ArtistWeight+m.DurationWeight+m.RankWeight > 0 {
		mc.Weights = matching.Weights{
			Title:    m.TitleWeight,
			Artist:   m.ArtistWeight,
			Duration: m.DurationWeight,
			Rank:     m.RankWeight,
		}
	}
	if m.StructuredRankStrength > 0 {
		mc.StructuredRankStrength = m.StructuredRankStrength
	}
	if m.FallbackRankStrength > 0 {
		mc.FallbackRankStrength = m.FallbackRankStrength
	}
	return mc
}

func Catalog(cfg config.Config) (*catalog.SpotifyClient, error) {
	return catalog.NewSpotifyClient(catalog.Config{
		ClientID:     cfg.Catalog.ClientID,
		ClientSecret: cfg.Catalog.ClientSecret,
		TokenURL:     cfg.Catalog.TokenURL,
		APIURL:       cfg.Catalog.APIURL,
		Market:       cfg.Catalog.Market,
	})
}

// Cache prefers Redis and falls back to an in-process store when Redis is not
// configured or unreachable.
func Cache(ctx context.Context, cfg config.Config, logger *logrus.Logger) cache.Store {
	if cfg.Cache.RedisAddr == "" {
		return cache.NewMemoryStore()
	}
	store, err := cache.NewRedisStore(ctx, cache.Config{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	if err != nil {
		logger.Warnf("redis cache unavailable, using memory: %v", err)
		return cache.NewMemoryStore()
	}
	logger.Infof("caching candidates in redis at %s", cfg.Cache.RedisAddr)
	return store
}

// MediaSource wires yt-dlp as the fallback searcher and downloader, and the
// music index as the structured searcher when a proxy URL is configured.
func MediaSource(cfg config.Config, store cache.Store, logger *logrus.Logger) (*mediasource.Service, error) {
	ytdlp, err := mediasource.NewYTDLP(mediasource.YTDLPConfig{
		Binary:      cfg.MediaSource.YTDLPPath,
		AudioFormat: cfg.Download.OutputFormat,
		Timeout:     cfg.MediaSource.Timeout,
		RatePerSec:  cfg.MediaSource.RatePerSec,
	})
	if err != nil {
		return nil, err
	}
	fallback := mediasource.NewCachedSearcher(string(domain.SourceFallback), ytdlp, store, cfg.Cache.TTL, logger)

	var structured mediasource.Searcher
	if cfg.MediaSource.ProxyURL != "" {
		index := mediasource.NewMusicIndex(cfg.MediaSource.ProxyURL, musicIndexTimeout)
		structured = mediasource.NewCachedSearcher(string(domain.SourceStructured), index, store, cfg.Cache.TTL, logger)
		logger.Infof("using music index at %s", cfg.MediaSource.ProxyURL)
	}

	return mediasource.NewService(structured, fallback, ytdlp, logger), nil
}

func Storage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*storage.S3Service, error) {
	if cfg.Storage.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client, cfg.Storage.Bucket, cfg.Storage.KeyPrefix)
}
