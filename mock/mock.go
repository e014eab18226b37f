// Package mock provides test doubles for pipeline listeners and surfaces.
package mock

import (
	"image"
	"sync"
	"time"

	"github.com/nnsuite/nnpipe/tensor"
)

// Listener counts delivered tensors. Use pointer to register it.
type Listener struct {
	counter
	// Keep makes the listener keep delivered data.
	Keep bool
	// Notify receives a value for every delivery if set. It must have
	// enough room, delivery blocks otherwise.
	Notify chan struct{}

	data []*tensor.Data
}

// OnData counts the delivery.
func (m *Listener) OnData(d *tensor.Data) {
	m.mu.Lock()
	m.count++
	if d != nil {
		m.bytes += d.Size()
	}
	if m.Keep {
		m.data = append(m.data, d)
	}
	m.mu.Unlock()
	if m.Notify != nil {
		m.Notify <- struct{}{}
	}
}

// Data returns kept deliveries.
func (m *Listener) Data() []*tensor.Data {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*tensor.Data(nil), m.data...)
}

// WaitCount blocks until count reaches n or timeout expires. Returns the
// last observed count.
func (m *Listener) WaitCount(n int, timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	for {
		c, _ := m.Count()
		if c >= n || time.Now().After(deadline) {
			return c
		}
		time.Sleep(time.Millisecond)
	}
}

// Surface records rendered frames.
type Surface struct {
	counter
	NotReady    bool
	ErrorOnCall error
	last        image.Image
}

// Ready returns false if NotReady is set.
func (m *Surface) Ready() bool {
	return !m.NotReady
}

// Render records the frame.
func (m *Surface) Render(img image.Image) error {
	if m.ErrorOnCall != nil {
		return m.ErrorOnCall
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	m.bytes += img.Bounds().Dx() * img.Bounds().Dy()
	m.last = img
	return nil
}

// Last returns the last rendered frame.
func (m *Surface) Last() image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type counter struct {
	mu    sync.Mutex
	count int
	bytes int
}

// Count returns number of calls and total size seen. Size is in bytes for
// listeners and pixels for surfaces.
func (c *counter) Count() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count, c.bytes
}
