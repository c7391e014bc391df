//go:build !linux && !darwin

package plugin

import oasis "github.com/nevindra/clawgate"

// LoadFile is unavailable on platforms without Go plugin support.
func LoadFile(path string, sdk *SDK) *oasis.Error {
	return oasis.NewInternal("plugin loading is not supported on this platform", path)
}

// LoadDir is unavailable on platforms without Go plugin support.
func LoadDir(dir string, sdk *SDK) ([]string, *oasis.Error) {
	return nil, oasis.NewInternal("plugin loading is not supported on this platform", dir)
}
