package process

import (
	"context"
	"sync"
)

// Recorder is an Executor that records every command instead of running it.
// Handler, when set, decides the outcome of each call; otherwise every
// command succeeds.
type Recorder struct {
	Handler Func

	mu       sync.Mutex
	commands []Command
}

// Run records cmd and delegates to Handler.
func (r *Recorder) Run(ctx context.Context, cmd Command) error {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()
	if r.Handler != nil {
		return r.Handler(ctx, cmd)
	}
	return nil
}

// Commands returns a copy of the recorded commands in call order.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

// Last returns the most recent command and whether one was recorded.
func (r *Recorder) Last() (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.commands) == 0 {
		return Command{}, false
	}
	return r.commands[len(r.commands)-1], true
}

// Ensure Recorder implements Executor.
var _ Executor = (*Recorder)(nil)
