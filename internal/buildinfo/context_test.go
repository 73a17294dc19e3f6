package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Version(t *testing.T) {
	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{"nil context", nil, UnknownValue},
		{"empty version", &Context{}, UnknownValue},
		{"set version", &Context{Version: "v1.4.0"}, "v1.4.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ctx.GetVersion())
		})
	}
}

func TestContext_BuildDate(t *testing.T) {
	var nilCtx *Context
	assert.Equal(t, UnknownValue, nilCtx.GetBuildDate())
	assert.Equal(t, "2026-03-01", (&Context{BuildDate: "2026-03-01"}).GetBuildDate())
}

func TestContext_ReleaseAndUserAgent(t *testing.T) {
	c := &Context{Version: "1.2.0"}
	assert.Equal(t, "bibfinder@1.2.0", c.Release("bibfinder"))
	assert.Equal(t, "bibfinder/1.2.0", c.UserAgent("bibfinder"))

	var nilCtx *Context
	assert.Equal(t, "bibfinder/unknown", nilCtx.UserAgent("bibfinder"))
}
