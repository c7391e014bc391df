//go:build linux || darwin

package plugin

import (
	"path/filepath"
	goplugin "plugin"

	oasis "github.com/nevindra/clawgate"
)

// registerFuncName is the exported symbol every plugin .so must define:
//
//	func Register(sdk *plugin.SDK)
const registerFuncName = "Register"

// LoadFile opens a single .so plugin and calls its Register entry point
// against sdk. The plugin's own init-time side effects (if any) run as part
// of Open; Register is expected to be side-effect-free beyond RegisterTool
// calls.
func LoadFile(path string, sdk *SDK) *oasis.Error {
	p, err := goplugin.Open(path)
	if err != nil {
		return oasis.NewInternal("failed to open plugin", err.Error())
	}
	sym, err := p.Lookup(registerFuncName)
	if err != nil {
		return oasis.NewInvalidArgument("plugin missing Register entry point", err.Error())
	}
	register, ok := sym.(func(*SDK))
	if !ok {
		return oasis.NewInvalidArgument("plugin Register has wrong signature", path)
	}
	register(sdk)
	return nil
}

// LoadDir loads every .so file directly inside dir (non-recursive) into
// sdk, returning the first error encountered. A plugin that fails to load
// does not prevent the gateway from starting, since the caller is free to
// ignore or log the error rather than abort.
func LoadDir(dir string, sdk *SDK) ([]string, *oasis.Error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		return nil, oasis.NewInvalidArgument("invalid plugin directory pattern", err.Error())
	}
	loaded := make([]string, 0, len(matches))
	for _, path := range matches {
		if loadErr := LoadFile(path, sdk); loadErr != nil {
			return loaded, loadErr
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}
