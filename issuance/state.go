package issuance

import (
	"fmt"
	"slices"
)

// Step is one issuance operation. Each step moves the issuer to a fixed
// target status and is only allowed from a fixed set of source statuses.
type Step string

const (
	StepInitPKI     Step = "init-pki"
	StepBuildCA     Step = "build-ca"
	StepGenDH       Step = "gen-dh"
	StepBuildServer Step = "build-server-full"
	StepBuildClient Step = "build-client-full"
	StepGenTA       Step = "gen-ta"
)

type transition struct {
	from []Status
	to   Status
}

// Server, client and TA generation may repeat in any order once DH exists.
var afterDH = []Status{StatusGeneratedDH, StatusGeneratedServer, StatusGeneratedClient, StatusGeneratedTA}

var transitions = map[Step]transition{
	StepInitPKI:     {from: []Status{StatusCreatedVars}, to: StatusInitializedPKI},
	StepBuildCA:     {from: []Status{StatusInitializedPKI}, to: StatusGeneratedCA},
	StepGenDH:       {from: []Status{StatusGeneratedCA}, to: StatusGeneratedDH},
	StepBuildServer: {from: afterDH, to: StatusGeneratedServer},
	StepBuildClient: {from: afterDH, to: StatusGeneratedClient},
	StepGenTA:       {from: afterDH, to: StatusGeneratedTA},
}

// Transition returns the status reached by running s from status from.
func (s Step) Transition(from Status) (Status, error) {
	t, ok := transitions[s]
	if !ok {
		return "", fmt.Errorf("unknown step %q", s)
	}
	if !slices.Contains(t.from, from) {
		return "", fmt.Errorf("%s from %s (allowed from %v): %w", s, from, s.Allowed(), ErrInvalidTransition)
	}
	return t.to, nil
}

// Allowed returns the statuses s may run from.
func (s Step) Allowed() []Status {
	return slices.Clone(transitions[s].from)
}

// Category returns the certificate category s registers, if any.
func (s Step) Category() (Category, bool) {
	switch s {
	case StepBuildCA:
		return CategoryCA, true
	case StepBuildServer:
		return CategoryServer, true
	case StepBuildClient:
		return CategoryClient, true
	default:
		return "", false
	}
}
