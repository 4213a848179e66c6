package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/dynfw/internal/config"
	"github.com/temoto/dynfw/log2"
)

func TestGlobal(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	ctx, g := NewContext(log, config.New())
	assert.Equal(t, g, GetGlobal(ctx))
	assert.Equal(t, log, log2.ContextValueLogger(ctx))
	assert.True(t, g.Alive.IsRunning())
	g.Stop()
	<-g.Alive.StopChan()

	assert.Panics(t, func() { GetGlobal(context.Background()) })
	assert.Panics(t, func() { NewContext(nil, nil) })
}
