package commands

import (
	"context"

	"github.com/de-tools/waste-atlas/pkg/runtime/app"
	"github.com/de-tools/waste-atlas/pkg/runtime/terminal/export"
	"github.com/de-tools/waste-atlas/pkg/services/config"
)

// Env is what commands need from the CLI around them.
type Env interface {
	App(ctx context.Context) (*app.App, error)
	Config() (*config.Config, error)
	Reporter() *export.Reporter
}

// open returns the wired application together with a context carrying its
// logger.
func open(ctx context.Context, env Env) (*app.App, context.Context, error) {
	a, err := env.App(ctx)
	if err != nil {
		return nil, ctx, err
	}
	return a, a.Logger.WithContext(ctx), nil
}
