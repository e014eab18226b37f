// Package filter holds the neural network backends of tensor_filter.
//
// A backend is registered under a framework name. Opening a framework
// with model properties returns an Instance bound to that model.
package filter

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/nnsuite/nnpipe/tensor"
)

var (
	// ErrNotAvailable is returned when framework isn't registered.
	ErrNotAvailable = errors.New("framework not available")
	// ErrModel is returned when model can't be loaded.
	ErrModel = errors.New("invalid model")
)

type (
	// Properties describe the model to open.
	Properties struct {
		// Model holds model paths or, for custom-easy, the registered name.
		Model       []string
		Custom      string
		Accelerator string
		// Input and Output are requested by the pipeline. Empty info
		// means the model's own info is used.
		Input  tensor.Info
		Output tensor.Info
	}

	// Framework opens model instances.
	Framework interface {
		Open(p Properties) (Instance, error)
	}

	// FrameworkFunc is a function adapter for Framework.
	FrameworkFunc func(p Properties) (Instance, error)

	// Instance is an opened model.
	Instance interface {
		InputInfo() tensor.Info
		OutputInfo() tensor.Info
		Invoke(in *tensor.Data) (*tensor.Data, error)
		Close() error
	}
)

// Open calls fn.
func (fn FrameworkFunc) Open(p Properties) (Instance, error) {
	return fn(p)
}

var (
	mu         sync.RWMutex
	frameworks = make(map[string]Framework)
)

// extensions map model file extensions to frameworks for "auto".
var extensions = map[string]string{
	".yaml":   "gonum-dense",
	".yml":    "gonum-dense",
	".tflite": "tensorflow-lite",
	".pb":     "tensorflow",
	".pt":     "pytorch",
	".dlc":    "snpe",
	".circle": "nnfw",
	".so":     "custom",
}

// Register adds framework.
func Register(name string, f Framework) {
	mu.Lock()
	defer mu.Unlock()
	frameworks[name] = f
}

// IsAvailable returns true if framework is registered.
func IsAvailable(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := frameworks[name]
	return ok
}

// Frameworks returns sorted names of registered frameworks.
func Frameworks() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(frameworks))
	for name := range frameworks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detect returns framework of the model file for "auto" framework.
func Detect(model string) (string, bool) {
	name, ok := extensions[strings.ToLower(filepath.Ext(model))]
	return name, ok
}

// Open opens model with the named framework. Requested input and output
// info must match the info of opened instance.
func Open(name string, p Properties) (Instance, error) {
	if name == "auto" || name == "" {
		if len(p.Model) == 0 {
			return nil, fmt.Errorf("%w: framework can't be detected without model", ErrModel)
		}
		detected, ok := Detect(p.Model[0])
		if !ok {
			return nil, fmt.Errorf("%w: framework of %q", ErrNotAvailable, p.Model[0])
		}
		name = detected
	}
	mu.RLock()
	f, ok := frameworks[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAvailable, name)
	}
	inst, err := f.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := check("input", p.Input, inst.InputInfo()); err != nil {
		inst.Close()
		return nil, err
	}
	if err := check("output", p.Output, inst.OutputInfo()); err != nil {
		inst.Close()
		return nil, err
	}
	return inst, nil
}

func check(what string, requested, actual tensor.Info) error {
	if requested.Len() == 0 || requested.Equal(actual) {
		return nil
	}
	return fmt.Errorf("%w: %s %v doesn't match model %v", ErrModel, what, requested, actual)
}
