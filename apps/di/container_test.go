package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/somesha/core"
	logsvc "github.com/trezcool/somesha/services/logger"
)

func TestNew_memoryEngine(t *testing.T) {
	conf := core.NewConfig()
	conf.Database.Engine = EngineMemory
	conf.Storage.Driver = "local"
	conf.Storage.LocalDir = t.TempDir()
	conf.SendgridApiKey = ""
	conf.Identity.BaseURL = ""

	var c *Container
	require.NotPanics(t, func() {
		var err error
		c, err = New(context.Background(), conf, logsvc.NewRollbarLoggerMock(), Options{})
		require.NoError(t, err)
	})
	defer c.Close()

	assert.Nil(t, c.DB)
	assert.NotNil(t, c.LocalFiles())
	assert.NotNil(t, c.Schools)
	assert.NotNil(t, c.Trainers)
	assert.NotNil(t, c.Students)
	assert.NotNil(t, c.Learning)
	assert.NotNil(t, c.Uploads)
}

func Test_memoryRepositories_transactor(t *testing.T) {
	repos := memoryRepositories(nil)
	require.NotNil(t, repos.tx)

	called := false
	err := repos.tx.WithinTx(context.Background(), func(core.DBExecutor) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}
