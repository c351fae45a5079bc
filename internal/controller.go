// Package internal wires the server together: configuration, logging, the
// session registry, the game hub, both listeners, and the optional result
// archive.
package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/halma/sternd/internal/core"
	"github.com/halma/sternd/internal/data"
	"github.com/halma/sternd/internal/debug"
	"github.com/halma/sternd/internal/hub"
	"github.com/halma/sternd/internal/session"
)

// Controller is the main entrypoint for the server. It is responsible for
// initializing shared resources, declaring the listeners, and launching
// everything.
type Controller struct {
	Config *core.Config

	logger *logrus.Logger
	wg     sync.WaitGroup

	store *data.Store
	hub   *hub.Hub
}

// Start runs the server until the game ends or ctx is cancelled. The error
// is non-nil only for initialization failures (bad config, bind errors).
func (c *Controller) Start(ctx context.Context) error {
	var err error
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}

	if err := c.Config.Validate(); err != nil {
		return err
	}

	if c.Config.Debugging.PprofEnabled {
		go debug.StartPprofServer(c.logger, c.Config.Debugging.PprofPort)
	}

	// The result archive is optional; the hub takes a nil recorder in
	// stride.
	var recorder hub.Recorder
	if c.Config.Database.Engine != "" {
		c.store, err = c.openStore()
		if err != nil {
			return err
		}
		defer c.store.Close()
		recorder = c.store
	}

	registry := session.NewRegistry(c.Config.ReconnectGrace())

	maxTurns := c.Config.Game.MaxTurns
	if maxTurns < 0 {
		maxTurns = hub.Unlimited
	}
	c.hub = hub.New(hub.Config{MaxTurns: maxTurns}, registry, recorder, c.logger)

	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.hub.Run(hubCtx)
	}()

	fe := &frontend{
		Config: c.Config,
		Hub:    c.hub,
		Logger: c.logger,
	}
	if c.Config.TCPAddr != "" {
		if err := fe.StartTCP(ctx, &c.wg); err != nil {
			cancelHub()
			c.wg.Wait()
			return err
		}
	}
	if c.Config.WSAddr != "" {
		if err := fe.StartWS(ctx, &c.wg); err != nil {
			cancelHub()
			c.wg.Wait()
			return err
		}
	}

	// Run until the game concludes or we are asked to stop.
	select {
	case <-c.hub.Done():
		c.logger.Info("game concluded, shutting down")
	case <-ctx.Done():
		c.logger.Info("shutdown requested")
	}
	cancelHub()
	c.wg.Wait()
	return nil
}

func (c *Controller) openStore() (*data.Store, error) {
	dsn := c.Config.Database.Filename
	if c.Config.Database.Engine == "postgres" {
		dsn = c.Config.DatabaseURL()
	}
	store, err := data.Open(c.Config.Database.Engine, dsn, c.Config.Debugging.MessageLoggingEnabled)
	if err != nil {
		return nil, fmt.Errorf("error opening result archive: %w", err)
	}
	c.logger.Infof("result archive enabled (%s)", c.Config.Database.Engine)
	return store, nil
}
