package main

import (
	"context"
	"fmt"
	"time"

	"midisession/internal/config"
	"midisession/internal/daemonrun"
	"midisession/internal/logging"
	"midisession/internal/manager"
)

// localSession is a short-lived manager of the CLI's own, separate from the
// daemon's session.
type localSession struct {
	*manager.Manager
	closeTransport func() error
}

func openLocalSession(ctx context.Context, cfg *config.Config) (*localSession, error) {
	logger := logging.NewNop()
	tr, err := daemonrun.OpenTransport(cfg, logger)
	if err != nil {
		return nil, err
	}
	closer := func() error { return nil }
	if c, ok := tr.(interface{ Close() error }); ok {
		closer = c.Close
	}

	session := manager.New(tr, fmt.Sprintf("%s cli", cfg.Client.Name),
		manager.WithLogger(logger),
		manager.WithModel(cfg.Client.Model),
		manager.WithManufacturer(cfg.Client.Manufacturer),
	)
	if err := session.Start(ctx); err != nil {
		_ = closer()
		return nil, fmt.Errorf("start session: %w", err)
	}
	return &localSession{Manager: session, closeTransport: closer}, nil
}

func (s *localSession) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Manager.Close(ctx)
	if cerr := s.closeTransport(); err == nil {
		err = cerr
	}
	return err
}
