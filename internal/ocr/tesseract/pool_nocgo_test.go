//go:build !cgo

package tesseract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racephotos/bibfinder/internal/errors"
)

func TestNewPool_RequiresCgo(t *testing.T) {
	p, err := NewPool(Config{Size: 2})
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
