package helpers

import (
	"fmt"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))

	single := errors.NotValidf("port=0")
	assert.Equal(t, single, FoldErrors([]error{nil, single}))

	err := FoldErrors([]error{fmt.Errorf("first 100%%"), nil, fmt.Errorf("second")})
	require.Error(t, err)
	assert.Equal(t, "first 100%\nsecond", err.Error())
}
