package state

type (
	// event triggers the state change.
	// Use imperative verbs for implementations.
	//
	// feedback is used to provide errors to the caller.
	event interface {
		feedback() chan error
		String() string
	}

	// errs is a wrapper for error channels. It's used to return errs
	// of state transition or error occurred during that transition.
	errs chan error
)

type (
	// start event is sent to start the data flow.
	start struct {
		errs
	}

	// stop event is sent to hold the data flow at sources.
	stop struct {
		errs
	}

	// shutdown event is sent to close the Handle.
	shutdown struct {
		errs
	}
)

func newErrs() errs {
	return make(errs, 1)
}

// feedback exposes error channel and used to satisfy event interface.
func (f errs) feedback() chan error {
	return f
}

// dismiss reports successful transition.
func (f errs) dismiss() {
	if f != nil {
		close(f)
	}
}

func (start) String() string {
	return "event.Start"
}

func (stop) String() string {
	return "event.Stop"
}

func (shutdown) String() string {
	return "event.Shutdown"
}
