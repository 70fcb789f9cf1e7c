package source

import (
	"context"
	"fmt"

	"github.com/garimto81/archive-analyzer/internal/config"
	"github.com/garimto81/archive-analyzer/internal/tracker"
)

// NewSourceFromConfig creates a TreeSource implementation based on the
// source config type.
func NewSourceFromConfig(ctx context.Context, cfg *config.Config) (tracker.TreeSource, error) {
	switch cfg.Source.Type {
	case "", "os":
		if cfg.Watch.Root == "" {
			return nil, fmt.Errorf("watch root required for os source")
		}
		return NewOSTreeSource(cfg.Watch.Root, cfg.Watch.Extensions), nil
	case "s3":
		return NewS3TreeSource(ctx, S3Options{
			Bucket:     cfg.Source.S3Bucket,
			Prefix:     cfg.Source.S3Prefix,
			Region:     cfg.Source.S3Region,
			Endpoint:   cfg.Source.S3Endpoint,
			AccessKey:  cfg.Source.S3AccessKey,
			SecretKey:  cfg.Source.S3SecretKey,
			Extensions: cfg.Watch.Extensions,
		})
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Source.Type)
	}
}

// NewObserverFromConfig returns the push observer when configured, or nil
// meaning the polling scanner should drive observation.
func NewObserverFromConfig(cfg *config.Config, logger tracker.Logger) (tracker.Observer, error) {
	switch cfg.Watch.Observer {
	case "", "poll":
		return nil, nil
	case "notify":
		if cfg.Source.Type == "s3" {
			return nil, fmt.Errorf("notify observer requires an os source")
		}
		return NewNotifyObserver(cfg.Watch.Root, cfg.Watch.Extensions, logger), nil
	default:
		return nil, fmt.Errorf("unknown observer type: %s", cfg.Watch.Observer)
	}
}
