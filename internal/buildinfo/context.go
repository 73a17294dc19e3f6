// Package buildinfo holds build-time metadata injected through -ldflags.
package buildinfo

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// GetVersion returns the build version, or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date, or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// Release is the release identifier reported to Sentry, e.g. bibfinder@1.2.0.
func (c *Context) Release(name string) string {
	return name + "@" + c.GetVersion()
}

// UserAgent is the User-Agent sent to the object store and detection service.
func (c *Context) UserAgent(name string) string {
	return name + "/" + c.GetVersion()
}
