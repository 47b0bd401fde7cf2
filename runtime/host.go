package runtime

import (
	"context"
	stderrors "errors"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/wasm-sandbox/engine"
	"github.com/wippyai/wasm-sandbox/errors"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) are registered as host functions.
type Host interface {
	// Namespace returns the import module name (e.g. "env").
	Namespace() string
}

// hostRegistry collects host functions until the first module importing
// their namespace is instantiated; the namespace is frozen from then on.
type hostRegistry struct {
	mu     sync.Mutex
	funcs  map[string]map[string]any
	linked map[string]bool
}

func newHostRegistry() *hostRegistry {
	return &hostRegistry{
		funcs:  make(map[string]map[string]any),
		linked: make(map[string]bool),
	}
}

// RegisterHost registers every exported method of h. Method names are
// converted from PascalCase to snake_case (GetValue -> get_value).
func (r *Runtime) RegisterHost(h Host) error {
	ns := h.Namespace()
	rv := reflect.ValueOf(h)
	rt := rv.Type()

	funcs := make(map[string]any)
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}
		funcs[toSnakeCase(method.Name)] = rv.Method(i).Interface()
	}
	return r.hosts.register(ns, funcs)
}

// RegisterFunc registers a single host function. See
// engine.ValidateHostFunc for the accepted signatures.
func (r *Runtime) RegisterFunc(namespace, name string, fn any) error {
	if name == "" {
		return errors.New(errors.PhaseRegistry, errors.KindTypeMismatch).
			Detail("host function name cannot be empty").Build()
	}
	return r.hosts.register(namespace, map[string]any{name: fn})
}

func (h *hostRegistry) register(ns string, funcs map[string]any) error {
	if ns == "" {
		return errors.New(errors.PhaseRegistry, errors.KindTypeMismatch).
			Detail("host namespace cannot be empty").Build()
	}
	if ns == engine.WASIModuleName {
		return errors.New(errors.PhaseRegistry, errors.KindPermissionDenied).
			Path(ns).Detail("namespace is reserved for WASI").Build()
	}
	for name, fn := range funcs {
		if err := engine.ValidateHostFunc(fn); err != nil {
			var e *errors.Error
			if stderrors.As(err, &e) {
				e.Path = []string{ns, name}
			}
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.linked[ns] {
		return errors.New(errors.PhaseRegistry, errors.KindModuleInUse).
			Path(ns).Detail("host namespace is already linked").Build()
	}
	if h.funcs[ns] == nil {
		h.funcs[ns] = make(map[string]any)
	}
	for name, fn := range funcs {
		h.funcs[ns][name] = fn
	}
	return nil
}

// link instantiates the registered namespaces a module imports. Namespaces
// nobody registered are left for instantiation to reject.
func (h *hostRegistry) link(ctx context.Context, eng *engine.Engine, imports []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ns := range imports {
		funcs, ok := h.funcs[ns]
		if !ok || h.linked[ns] {
			continue
		}
		if err := eng.LinkHost(ctx, ns, funcs); err != nil {
			return errors.Instantiation("link host namespace "+ns, err)
		}
		h.linked[ns] = true
	}
	return nil
}

// toSnakeCase converts PascalCase to snake_case. A run of capitals is one
// word, split only before a trailing capital that starts a lowercase word:
// HTTPServer -> http_server, GetHTTPURL -> get_httpurl.
func toSnakeCase(s string) string {
	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsUpper(r) {
			result.WriteRune(r)
			continue
		}

		acronymEnd := i + 1
		for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
			acronymEnd++
		}
		// Last uppercase before lowercase starts next word, not part of acronym
		if acronymEnd > i+1 && acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
			acronymEnd--
		}

		if i > 0 {
			result.WriteByte('_')
		}
		for j := i; j < acronymEnd; j++ {
			result.WriteRune(unicode.ToLower(runes[j]))
		}
		i = acronymEnd - 1
	}
	return result.String()
}
