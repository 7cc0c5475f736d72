package hook

import (
	"fmt"
	"sync"

	"github.com/marmos91/dittoudp/pkg/request"
)

// State is the terminal state of a pipeline run.
type State int

const (
	// Completed means every hook ran.
	Completed State = iota

	// Aborted means a hook called Abort and the remaining hooks were skipped.
	Aborted
)

func (s State) String() string {
	switch s {
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Result describes how a run ended.
type Result struct {
	State State

	// Executed is the number of hooks that ran. When State is Aborted the
	// aborting hook is at index Executed-1.
	Executed int
}

// Pipeline runs registered hooks in order.
//
// Registration happens during setup. Freeze is called when the server
// starts; registering afterwards panics. Run may be called from any number
// of goroutines at once and never holds a lock while a hook executes.
type Pipeline struct {
	mu        sync.RWMutex
	factories []Factory
	frozen    bool
}

// NewPipeline returns an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Register appends f. Panics if f is nil or the pipeline is frozen.
func (p *Pipeline) Register(f Factory) {
	if f == nil {
		panic("hook: nil factory")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frozen {
		panic("hook: cannot register hooks after the server has started")
	}
	p.factories = append(p.factories, f)
}

// Use registers fn as a hook.
func (p *Pipeline) Use(fn HandlerFunc) {
	p.Register(Func(fn))
}

// Freeze rejects further registrations.
func (p *Pipeline) Freeze() {
	p.mu.Lock()
	p.frozen = true
	p.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (p *Pipeline) Frozen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frozen
}

// Len returns the number of registered hooks.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.factories)
}

// Run executes the hooks in registration order against rc.
//
// Each hook is built by its factory right before it runs and finishes
// before the next one is built. After every hook the abort flag is checked;
// if set, Run stops and reports Aborted. Panics from hooks propagate to the
// caller.
func (p *Pipeline) Run(rc *request.Context) Result {
	p.mu.RLock()
	factories := p.factories
	p.mu.RUnlock()

	for i, factory := range factories {
		h := factory(rc)
		if h == nil {
			panic(fmt.Sprintf("hook: factory %d returned nil", i))
		}
		h.Handle(rc)

		if rc.IsAborted() {
			return Result{State: Aborted, Executed: i + 1}
		}
	}

	return Result{State: Completed, Executed: len(factories)}
}
