package vigild

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ModuleRunner runs a module within the supervisor.
type ModuleRunner struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor manages module lifecycles. The first module to fail stops the
// rest.
type Supervisor struct {
	Logger *zap.Logger
}

// Run starts all module runners and waits for them to stop.
func (s Supervisor) Run(ctx context.Context, modules []ModuleRunner) error {
	if len(modules) == 0 {
		return errors.New("no modules enabled")
	}
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(modules))
	for _, module := range modules {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mlog := log.With(zap.String("module", module.Name))
			mlog.Info("starting module")
			if err := module.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				mlog.Error("module exited", zap.Error(err))
				errCh <- fmt.Errorf("%s: %w", module.Name, err)
				cancel()
				return
			}
			mlog.Info("module stopped")
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		wg.Wait()
		return err
	}
	log.Info("shutdown requested")
	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
