package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorWithStates switches behavior between named states.
type ActorWithStates struct {
	Behavior actor.Behavior
}

type ActorState interface {
	Name() string
	Receive(actor.Context)
}

func (s *ActorWithStates) Become(state ActorState) {
	s.Behavior.Become(state.Receive)
}

