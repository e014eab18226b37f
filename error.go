package nnpipe

import (
	"errors"
	"fmt"

	"github.com/nnsuite/nnpipe/element"
	"github.com/nnsuite/nnpipe/graph"
	"github.com/nnsuite/nnpipe/surface"
	"github.com/nnsuite/nnpipe/tensor"
)

var (
	// ErrInvalidArgument is returned when argument is empty or nil.
	ErrInvalidArgument = graph.ErrInvalidArgument
	// ErrNoSuchElement is returned when element doesn't exist or has
	// another kind.
	ErrNoSuchElement = graph.ErrNoSuchElement
	// ErrNoSuchPad is returned when selector has no such pad.
	ErrNoSuchPad = fmt.Errorf("%w: no such pad", ErrNoSuchElement)
	// ErrGraphSyntax is returned when description is malformed.
	ErrGraphSyntax = graph.ErrSyntax
	// ErrUnknownElement is returned when description names unknown kind.
	ErrUnknownElement = graph.ErrUnknownElement
	// ErrEmptyDescription is returned when description is blank.
	ErrEmptyDescription = graph.ErrEmptyDescription
	// ErrShapeMismatch is returned when input data doesn't fit the source.
	ErrShapeMismatch = element.ErrShapeMismatch
	// ErrQueueFull is returned when source queue has no room for data.
	ErrQueueFull = element.ErrQueueFull
	// ErrNotRegistered is returned when listener isn't registered.
	ErrNotRegistered = errors.New("listener not registered")
	// ErrInvalidSurface is returned when surface can't be rendered to.
	ErrInvalidSurface = errors.New("invalid surface")
	// ErrClosedPipeline is returned when pipeline is closed.
	ErrClosedPipeline = errors.New("pipeline is closed")
	// ErrConstruction is returned when pipeline can't be constructed.
	ErrConstruction = errors.New("pipeline construction failed")
)

// boundary maps errors of internal packages to the errors of this
// package.
func boundary(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, element.ErrNoSuchPad):
		return fmt.Errorf("%w: %v", ErrNoSuchPad, err)
	case errors.Is(err, surface.ErrNotReady):
		return fmt.Errorf("%w: %v", ErrInvalidSurface, err)
	case errors.Is(err, tensor.ErrSizeMismatch) && !errors.Is(err, ErrShapeMismatch):
		return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	case errors.Is(err, tensor.ErrInvalidInfo) && !errors.Is(err, ErrShapeMismatch):
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return err
}
