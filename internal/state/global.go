// Package state holds process-wide objects passed to subcommands through context.
package state

import (
	"context"
	"fmt"

	"github.com/temoto/alive/v2"
	"github.com/temoto/dynfw/internal/config"
	"github.com/temoto/dynfw/log2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *config.Config
	Log          *log2.Log
}

type contextKey struct{}

var ContextKey = contextKey{}

func NewContext(log *log2.Log, cfg *config.Config) (context.Context, *Global) {
	if log == nil {
		panic("code error state.NewContext() log=nil")
	}
	g := &Global{
		Alive:  alive.NewAlive(),
		Config: cfg,
		Log:    log,
	}
	ctx := context.Background()
	ctx = log2.ContextWithLog(ctx, log)
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%v'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%v'] expected type *Global actual=%#v", ContextKey, v))
}

func (g *Global) Stop() {
	g.Log.Debugf("global stop")
	g.Alive.Stop()
}
