package alm

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/app"
)

const (
	appName        = "alm"
	appDescription = `Ansible Log Analysis Service

The log triage service clusters anomalous log lines into templates,
gathers surrounding context through an LLM-driven retrieval loop and
produces a remediation plan per template.

This server provides:
  - Log template clustering with novelty detection
  - Context accumulation routing over live logs, knowledge base and source
  - Remediation plan generation with per-template caching`
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("Ansible log triage and remediation service"),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run runs the triage service with the given options.
func Run(opts *Options) error {
	// 初始化日志（其余组件在 NewServer 里按序初始化）
	opts.Log.AddInitialField("service.name", appName)
	opts.Log.AddInitialField("service.version", app.GetVersion())
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting log triage service...")

	ctx := context.Background()
	srv, err := NewServer(ctx, opts)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
