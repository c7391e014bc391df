package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"
	"sync"

	oasis "github.com/nevindra/clawgate"
)

// Patch is one dot-path write in a config.patch request: Path "gateway.port"
// with Value 8000 sets {"gateway":{"port":8000}}, creating intermediate
// objects as needed.
type Patch struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Runtime is the mutable runtime-config JSON document: the live knob state
// a running gateway can be reconfigured against via config.get/config.patch
// without a restart. It is distinct from the static Config loaded at
// startup, which seeds its initial contents.
//
// Every mutation is serialized under mu and, if a persist path is set,
// written to disk so the document survives a restart.
type Runtime struct {
	mu          sync.Mutex
	doc         map[string]any
	persistPath string
}

// NewRuntime creates a Runtime seeded with doc (which it takes ownership
// of — callers should not retain a reference to mutate it directly).
// persistPath may be empty, in which case mutations are not persisted.
func NewRuntime(doc map[string]any, persistPath string) *Runtime {
	if doc == nil {
		doc = make(map[string]any)
	}
	return &Runtime{doc: doc, persistPath: persistPath}
}

// Get returns a deep copy of the current document alongside its hash, so a
// caller can safely read the snapshot and later call Patch with baseHash
// pinned to what it observed.
func (r *Runtime) Get() (map[string]any, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return deepCopyObject(r.doc), r.hashLocked()
}

// Hash returns the current document's hash without copying its contents.
func (r *Runtime) Hash() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hashLocked()
}

func (r *Runtime) hashLocked() string {
	canonical, err := json.Marshal(r.doc)
	if err != nil {
		// A document built only from JSON-safe values (maps, slices,
		// strings, numbers, bools) never fails to marshal.
		panic("config: runtime document is not JSON-serializable: " + err.Error())
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Patch applies patches atomically if baseHash matches the document's
// current hash, otherwise it reports ok=false and mutates nothing — the
// optimistic-concurrency contract of the wire protocol's config.patch.
func (r *Runtime) Patch(patches []Patch, baseHash string) (ok bool, newHash string, err *oasis.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hashLocked() != baseHash {
		return false, r.hashLocked(), nil
	}

	working := deepCopyObject(r.doc)
	for _, p := range patches {
		if p.Path == "" {
			return false, "", oasis.NewInvalidArgument("patch path must not be empty", "")
		}
		if setErr := setDotPath(working, p.Path, p.Value); setErr != nil {
			return false, "", setErr
		}
	}

	r.doc = working
	if perr := r.persistLocked(); perr != nil {
		return false, "", perr
	}
	return true, r.hashLocked(), nil
}

func (r *Runtime) persistLocked() *oasis.Error {
	if r.persistPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return oasis.NewInternal("failed to marshal runtime config", err.Error())
	}
	if err := os.WriteFile(r.persistPath, data, 0o600); err != nil {
		return oasis.NewInternal("failed to persist runtime config", err.Error())
	}
	return nil
}

// setDotPath navigates obj by the dot-separated segments of path, creating
// intermediate map[string]any objects as needed, and sets the final
// segment to value. Returns InvalidArgument if an intermediate segment
// already holds a non-object value.
func setDotPath(obj map[string]any, path string, value any) *oasis.Error {
	segments := strings.Split(path, ".")
	cur := obj
	for i, seg := range segments {
		if seg == "" {
			return oasis.NewInvalidArgument("patch path has empty segment", path)
		}
		if i == len(segments)-1 {
			cur[seg] = value
			return nil
		}
		next, exists := cur[seg]
		if !exists {
			child := make(map[string]any)
			cur[seg] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return oasis.NewInvalidArgument("patch path segment is not an object", seg)
		}
		cur = child
	}
	return nil
}

// deepCopyObject returns a structural copy of a JSON-object-shaped map, so
// Get/Patch callers never alias the Runtime's internal document.
func deepCopyObject(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyObject(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return val
	}
}
