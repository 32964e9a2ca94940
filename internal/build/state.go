package build

import (
	"context"
	"fmt"

	"github.com/goplus/archbuild/internal/ctxlog"
	"github.com/goplus/archbuild/pkgs/buildsys"
)

// State is the progress of one (library, architecture) unit.
type State int

const (
	Pending State = iota
	Fetching
	Configuring
	Building
	Installing
	Registered
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fetching:
		return "fetching"
	case Configuring:
		return "configuring"
	case Building:
		return "building"
	case Installing:
		return "installing"
	case Registered:
		return "registered"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// transitions lists the legal successors of each state. Configuring may
// jump to Registered when a previous run already installed the unit.
var transitions = map[State][]State{
	Pending:     {Fetching, Failed},
	Fetching:    {Configuring, Failed},
	Configuring: {Building, Registered, Failed},
	Building:    {Installing, Failed},
	Installing:  {Registered, Failed},
}

// unit tracks one step through its states. It is owned by a single
// goroutine.
type unit struct {
	library string
	arch    string

	state  State
	failed buildsys.Phase // set when state is Failed
}

func (u *unit) to(ctx context.Context, next State) {
	for _, s := range transitions[u.state] {
		if s == next {
			ctxlog.FromContext(ctx).Debug("unit state", "from", u.state.String(), "to", next.String())
			u.state = next
			return
		}
	}
	panic(fmt.Sprintf("build: %s (%s): illegal transition %s -> %s", u.library, u.arch, u.state, next))
}

// fail moves the unit to Failed, remembering the phase that failed.
func (u *unit) fail(ctx context.Context, phase buildsys.Phase) {
	u.to(ctx, Failed)
	u.failed = phase
}

// phase returns the adapter phase a state runs.
func (s State) phase() buildsys.Phase {
	switch s {
	case Fetching:
		return buildsys.PhaseFetch
	case Configuring:
		return buildsys.PhaseConfigure
	case Building:
		return buildsys.PhaseBuild
	case Installing:
		return buildsys.PhaseInstall
	}
	return 0
}
