package runtime

import (
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/wippyai/wasm-sandbox/engine"
)

// ModuleHandle identifies a compiled module. Handles are never reused
// within a Runtime; the zero value is never issued.
type ModuleHandle uint64

func (h ModuleHandle) String() string {
	return "module#" + strconv.FormatUint(uint64(h), 10)
}

// InstanceHandle identifies a live instance. Handles are never reused
// within a Runtime; the zero value is never issued.
type InstanceHandle uint64

func (h InstanceHandle) String() string {
	return "instance#" + strconv.FormatUint(uint64(h), 10)
}

// artifact is one compiled module shared by every handle whose bytes hash
// the same. Guarded by Runtime.mu.
type artifact struct {
	key    string
	module *engine.Module
	refs   int
	closed bool
}

type moduleEntry struct {
	handle    ModuleHandle
	artifact  *artifact
	instances int
}

type instanceEntry struct {
	handle InstanceHandle
	module ModuleHandle
	inst   *engine.Instance

	// lock serializes calls and memory access. Weighted so waiting honors
	// the caller's context.
	lock    *semaphore.Weighted
	dropped atomic.Bool
}

// registry holds the handle tables. Every method expects the caller to
// hold mu and does no blocking work.
type registry struct {
	mu        sync.RWMutex
	modules   map[ModuleHandle]*moduleEntry
	instances map[InstanceHandle]*instanceEntry
	artifacts map[string]*artifact

	nextModule   uint64
	nextInstance uint64
}

func newRegistry() *registry {
	return &registry{
		modules:   make(map[ModuleHandle]*moduleEntry),
		instances: make(map[InstanceHandle]*instanceEntry),
		artifacts: make(map[string]*artifact),
	}
}

func (g *registry) addModule(a *artifact) *moduleEntry {
	g.nextModule++
	a.refs++
	e := &moduleEntry{handle: ModuleHandle(g.nextModule), artifact: a}
	g.modules[e.handle] = e
	return e
}

func (g *registry) addInstance(m ModuleHandle, inst *engine.Instance) *instanceEntry {
	g.nextInstance++
	e := &instanceEntry{
		handle: InstanceHandle(g.nextInstance),
		module: m,
		inst:   inst,
		lock:   semaphore.NewWeighted(1),
	}
	g.instances[e.handle] = e
	return e
}

// release drops one artifact reference and reports whether the caller must
// close the compiled module.
func (g *registry) release(a *artifact) bool {
	a.refs--
	if a.refs > 0 {
		return false
	}
	delete(g.artifacts, a.key)
	a.closed = true
	return true
}
