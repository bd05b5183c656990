package profile

import "github.com/scrypster/bizdna/pkg/types"

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnBuilt  func(p *types.BehavioralProfile)
	OnFailed func(operatorID, scope string, err error)
}

// ProfileBuilt implements Listener.
func (l ListenerFuncs) ProfileBuilt(p *types.BehavioralProfile) {
	if l.OnBuilt != nil {
		l.OnBuilt(p)
	}
}

// ProfileBuildFailed implements Listener.
func (l ListenerFuncs) ProfileBuildFailed(operatorID, scope string, err error) {
	if l.OnFailed != nil {
		l.OnFailed(operatorID, scope, err)
	}
}
