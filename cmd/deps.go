package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/face-sorter/internal/cache"
	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/kozaktomas/face-sorter/internal/identity"
	"github.com/kozaktomas/face-sorter/internal/logging"
	"github.com/kozaktomas/face-sorter/internal/vision"
)

// appDeps holds the collaborators every command needs: configuration,
// logging, the fingerprint cache and the detector client.
type appDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	cache    *cache.Cache
	client   *vision.Client
}

// initDeps loads configuration and stands up the shared collaborators.
// Callers must defer deps.close().
func initDeps() (*appDeps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level: cfg.Logging.Level,
		Dir:   cfg.Directories.Logs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	fpCache := cache.New(cfg.Directories.Cache, cfg.Recognition.Model, logger)
	fpCache.Load()

	return &appDeps{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		cache:    fpCache,
		client:   vision.NewClient(cfg.Detector.URL),
	}, nil
}

func (d *appDeps) close() {
	if err := d.cache.Persist(); err != nil {
		d.logger.Error("failed to persist fingerprint cache", "error", err)
	}
	_ = d.closeLog()
}

// enroll builds the identity set from the known-faces directory.
func (d *appDeps) enroll(ctx context.Context) (*identity.Set, error) {
	loader := identity.NewLoader(d.client, d.cache, d.logger)
	set, err := loader.Load(ctx, identity.LoadOptions{
		Dir:          d.cfg.Directories.KnownFaces,
		Model:        d.cfg.Recognition.Model,
		MaxImageSize: d.cfg.Recognition.MaxImageSize,
		People:       peopleFromConfig(d.cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enroll known faces: %w", err)
	}
	return set, nil
}

func peopleFromConfig(cfg *config.Config) map[string]identity.Person {
	people := make(map[string]identity.Person, len(cfg.People))
	for name, p := range cfg.People {
		people[name] = identity.Person{
			Birthdate:  p.Birthdate,
			Priority:   p.Priority,
			OutputPath: p.OutputPath,
			FacesPath:  p.FacesPath,
		}
	}
	return people
}
