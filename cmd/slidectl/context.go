package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/infrastructure/config"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
	"github.com/wsiviewer/backend/internal/infrastructure/logger"
)

// commandContext loads the configuration and archive clients once per run.
type commandContext struct {
	configFlag *string

	cfg     *config.Config
	logger  *zap.Logger
	mapping *dicomweb.ClientMapping
	token   string
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	var (
		cfg *config.Config
		err error
	)
	if c.configFlag != nil && *c.configFlag != "" {
		cfg, err = config.LoadFile(*c.configFlag)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  "warn",
		Format: "console",
		Output: "stderr",
	}, "")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	c.cfg = cfg
	c.logger = log
	return cfg, nil
}

func (c *commandContext) clientMapping() (*dicomweb.ClientMapping, error) {
	if c.mapping != nil {
		return c.mapping, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	mapping, err := dicomweb.NewClientMapping(dicomweb.ManagerOptions{
		BaseURI:  cfg.DICOMweb.BaseURI,
		Settings: cfg.ServerSettings(),
		Timeout:  cfg.DICOMweb.Timeout,
		Logger:   c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configure archives: %w", err)
	}
	c.mapping = mapping
	return mapping, nil
}

// requestContext attaches the access token given on the command line to
// archive requests.
func (c *commandContext) requestContext(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return dicomweb.WithHeaders(ctx, map[string]string{"Authorization": "Bearer " + c.token})
}
