package subcmd

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/dynfw/internal/config"
)

func TestParse(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *config.Config, []string) error { return nil }
	mods := []Mod{{Name: "run", Main: noop}, {Name: "decode", Main: noop}}

	m, err := Parse("decode", mods)
	require.NoError(t, err)
	assert.Equal(t, "decode", m.Name)

	_, err = Parse("", mods)
	assert.True(t, errors.IsNotValid(err), errors.ErrorStack(err))

	_, err = Parse("fly", mods)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err), errors.ErrorStack(err))
	assert.Contains(t, err.Error(), "run, decode")

	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{Main: noop}}) })
}
