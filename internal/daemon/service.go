package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/compose-network/rollup-job-handler/internal/jobs"
	"github.com/compose-network/rollup-job-handler/internal/logger"
	"golang.org/x/sync/errgroup"
)

type (
	jobSource interface {
		Stream(ctx context.Context, out chan<- jobs.JobCall) error
	}
	resultSink interface {
		Consume(results <-chan jobs.Result) error
	}
	jobDispatcher interface {
		Reconcile(ctx context.Context) error
		Run(ctx context.Context, in <-chan jobs.JobCall, out chan<- jobs.Result) error
	}

	// Service pumps job calls from a source through the dispatcher into a result sink.
	Service struct {
		source           jobSource
		sink             resultSink
		dispatcher       jobDispatcher
		reconcileOnStart bool
		logger           *slog.Logger
	}
)

func NewService(source jobSource, sink resultSink, dispatcher jobDispatcher, reconcileOnStart bool) *Service {
	return &Service{
		source:           source,
		sink:             sink,
		dispatcher:       dispatcher,
		reconcileOnStart: reconcileOnStart,
		logger:           logger.Named("daemon_service"),
	}
}

// Run returns once the source is exhausted and every accepted job has a recorded result,
// or once ctx is cancelled and in-flight jobs have finished.
func (s *Service) Run(ctx context.Context) error {
	if s.reconcileOnStart {
		s.logger.Info("reconciling registry against the container runtime")
		if err := s.dispatcher.Reconcile(ctx); err != nil {
			s.logger.With("err", err.Error()).Warn("reconciliation incomplete, continuing with stale entries")
		}
	}

	in := make(chan jobs.JobCall)
	out := make(chan jobs.Result)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(in)
		if err := s.source.Stream(gctx, in); err != nil {
			return fmt.Errorf("job source failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer close(out)
		return s.dispatcher.Run(gctx, in, out)
	})
	g.Go(func() error {
		if err := s.sink.Consume(out); err != nil {
			return fmt.Errorf("result sink failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		s.logger.Info("shutdown requested, in-flight jobs finished")
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info("job source exhausted, all results recorded")

	return nil
}
