package runtime

import (
	"context"

	"github.com/nnsuite/nnpipe/element"
)

// Message is sent between elements.
type Message struct {
	element.Buffer
	// Pad is the input pad of the receiving element.
	Pad int
	// EOS marks the end of stream on the pad.
	EOS bool
}

// inbox receives messages of every input pad of an element.
type inbox chan Message

// outlet sends messages to a single input pad of downstream element.
type outlet struct {
	to  inbox
	pad int
}

// send blocks until the message is accepted or ctx is done.
func (o outlet) send(ctx context.Context, m Message) error {
	m.Pad = o.pad
	select {
	case o.to <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// receive blocks until message is received. False is returned if ctx is
// done.
func (in inbox) receive(ctx context.Context) (Message, bool) {
	select {
	case m := <-in:
		return m, true
	case <-ctx.Done():
		return Message{}, false
	}
}

// eos propagates end of stream to every outlet.
func eos(ctx context.Context, outs []outlet) error {
	for _, o := range outs {
		if err := o.send(ctx, Message{EOS: true}); err != nil {
			return err
		}
	}
	return nil
}
