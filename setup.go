/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package embedstore

import (
	"context"
	"fmt"

	"github.com/suparena/embedstore/config"
	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/logging"
	"go.uber.org/zap"
)

// Setup initializes the package from a loaded configuration: the database it
// describes becomes the default, its models are registered with it and the
// async executor is replaced by one sized by cfg.Workers. The previous
// executor is shut down within ctx.
func Setup(ctx context.Context, cfg config.Config, opts ...datastore.Option) (*datastore.Configuration, error) {
	dc, err := cfg.Configuration(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := RegisterModels(dc); err != nil {
		return nil, err
	}
	Init(dc)

	exec := cfg.Executor()
	prev := SetAsyncExecutor(exec)
	logging.L().Debug("embedstore set up",
		zap.String("database", dc.Name),
		zap.Int("workers", exec.Workers()))
	if prev != nil && prev != exec {
		if err := prev.Shutdown(ctx); err != nil {
			return dc, fmt.Errorf("shut down previous executor: %w", err)
		}
	}
	return dc, nil
}
