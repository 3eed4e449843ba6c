package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/somesha/core"
)

type reconciler interface {
	ReconcilePending(ctx context.Context, limit int) (int, error)
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(fmt.Sprintf("%s %v", msg, keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("%s %v", msg, keysAndValues), err)
}

// newScheduler schedules the reconciliation of the students whose identity sync is pending or failed.
func newScheduler(conf *core.Config, students reconciler, logger core.Logger) (*cron.Cron, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	schedule := conf.Identity.ReconcileSchedule
	if schedule == "" {
		return c, nil
	}
	_, err := c.AddFunc(schedule, func() {
		runReconcile(students, conf.Identity.ReconcileBatch, logger)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scheduling reconciliation %q", schedule)
	}
	return c, nil
}

func runReconcile(students reconciler, limit int, logger core.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := students.ReconcilePending(ctx, limit)
	if err != nil {
		logger.Error("reconciling pending students", err)
		return
	}
	if n > 0 {
		logger.Info(fmt.Sprintf("reconciled %d pending students", n))
	}
}
