// Package license resolves the relicensing obligations some dependencies
// impose on the consumer build.
package license

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goplus/archbuild/internal/ctxlog"
)

// Obligation is a set of license upgrades.
type Obligation uint8

const (
	Version3 Obligation = 1 << iota // (L)GPL version 3
	GPL                             // GPL instead of LGPL

	None Obligation = 0
)

var order = []struct {
	o    Obligation
	name string
	flag string
}{
	{Version3, "version 3", "--enable-version3"},
	{GPL, "GPL", "--enable-gpl"},
}

func (o Obligation) Has(x Obligation) bool { return o&x == x && x != 0 }

func (o Obligation) String() string {
	if o == None {
		return "none"
	}
	var parts []string
	for _, e := range order {
		if o.Has(e.o) {
			parts = append(parts, e.name)
		}
	}
	return strings.Join(parts, "+")
}

// Flags returns the consumer configure switches enabling o.
func (o Obligation) Flags() []string {
	var flags []string
	for _, e := range order {
		if o.Has(e.o) {
			flags = append(flags, e.flag)
		}
	}
	return flags
}

// Each calls fn for every single obligation in o, in a fixed order.
func (o Obligation) Each(fn func(Obligation)) {
	for _, e := range order {
		if o.Has(e.o) {
			fn(e.o)
		}
	}
}

// RefusedError is returned when an obligatory license upgrade is declined.
type RefusedError struct {
	Obligation Obligation
	Err        error // why no answer could be obtained, if any
}

func (e *RefusedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("license upgrade to %s refused: %v", e.Obligation, e.Err)
	}
	return fmt.Sprintf("license upgrade to %s refused", e.Obligation)
}

func (e *RefusedError) Unwrap() error { return e.Err }

// Prompter asks the user to accept one license upgrade.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Resolver decides once per run whether the collected obligations are
// accepted.
type Resolver struct {
	AutoAccept bool
	Prompter   Prompter
}

// Resolve returns the consumer flags for obligations, or a *RefusedError.
// Each upgrade is asked for separately, version 3 first.
func (r *Resolver) Resolve(ctx context.Context, obligations Obligation) ([]string, error) {
	log := ctxlog.FromContext(ctx)
	if obligations == None {
		return nil, nil
	}
	if r.AutoAccept {
		log.Info("license upgrade accepted by configuration", "license", obligations.String())
		return obligations.Flags(), nil
	}
	if r.Prompter == nil {
		return nil, &RefusedError{Obligation: obligations}
	}

	var err error
	obligations.Each(func(o Obligation) {
		if err != nil {
			return
		}
		q := fmt.Sprintf("License must be upgraded to %s to continue. Continue?", o)
		ok, perr := r.Prompter.Confirm(ctx, q)
		switch {
		case errors.Is(perr, ErrNotInteractive):
			err = &RefusedError{Obligation: o, Err: perr}
		case perr != nil:
			err = fmt.Errorf("license prompt: %w", perr)
		case !ok:
			err = &RefusedError{Obligation: o}
		default:
			log.Info("license upgrade accepted", "license", o.String())
		}
	})
	if err != nil {
		return nil, err
	}
	return obligations.Flags(), nil
}
