// internal/resource/types.go
package resource

import (
	"context"

	"github.com/ocfkit/buttond/internal/button"
)

// Descriptor declares one resource to register.
type Descriptor struct {
	Path          string
	ResourceTypes []string
	Interfaces    []string
	Discoverable  bool
	Observable    bool
	Properties    button.Snapshot // initial published properties
}

// Handler services observe/retrieve requests for a registered resource.
// Both must reply with a fresh sample.
type Handler interface {
	OnObserve(ctx context.Context) (button.Snapshot, error)
	OnRetrieve(ctx context.Context) (button.Snapshot, error)
}

// NoObserversError reports a notify attempt against an empty observer
// set. It is the expected steady state after all clients disconnect,
// not a transport fault.
type NoObserversError struct{}

func (NoObserversError) Error() string     { return "resource: no observers remain" }
func (NoObserversError) NoObservers() bool { return true }

// ErrNoObservers is returned by Resource.Notify when nobody is subscribed.
var ErrNoObservers = NoObserversError{}
