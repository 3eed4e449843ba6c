package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/somesha/core"
	logsvc "github.com/trezcool/somesha/services/logger"
)

type reconcilerMock struct {
	calls []int
	err   error
}

func (m *reconcilerMock) ReconcilePending(_ context.Context, limit int) (int, error) {
	m.calls = append(m.calls, limit)
	return 2, m.err
}

func Test_newScheduler(t *testing.T) {
	logger := logsvc.NewRollbarLoggerMock()
	conf := &core.Config{}

	conf.Identity.ReconcileSchedule = "@every 15m"
	sched, err := newScheduler(conf, &reconcilerMock{}, logger)
	require.NoError(t, err)
	assert.Len(t, sched.Entries(), 1)

	conf.Identity.ReconcileSchedule = ""
	sched, err = newScheduler(conf, &reconcilerMock{}, logger)
	require.NoError(t, err)
	assert.Empty(t, sched.Entries())

	conf.Identity.ReconcileSchedule = "every now and then"
	_, err = newScheduler(conf, &reconcilerMock{}, logger)
	assert.Error(t, err)
}

func Test_runReconcile(t *testing.T) {
	logger := logsvc.NewRollbarLoggerMock()

	m := &reconcilerMock{}
	runReconcile(m, 50, logger)
	assert.Equal(t, []int{50}, m.calls)

	m = &reconcilerMock{err: errors.New("identity provider down")}
	runReconcile(m, 10, logger)
	assert.Equal(t, []int{10}, m.calls)
}
