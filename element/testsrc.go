package element

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/nnsuite/nnpipe/graph"
	"github.com/nnsuite/nnpipe/tensor"
)

type pattern int

const (
	patternSMPTE pattern = iota
	patternSnow
	patternBlack
	patternWhite
	patternRed
	patternGreen
	patternBlue
	patternCheckers
)

var patternNames = map[string]pattern{
	"smpte":      patternSMPTE,
	"snow":       patternSnow,
	"black":      patternBlack,
	"white":      patternWhite,
	"red":        patternRed,
	"green":      patternGreen,
	"blue":       patternBlue,
	"checkers-1": patternCheckers,
}

// smpte bars, RGB
var smpteBars = [][3]byte{
	{192, 192, 192},
	{192, 192, 0},
	{0, 192, 192},
	{0, 192, 0},
	{192, 0, 192},
	{192, 0, 0},
	{0, 0, 192},
}

// pacer limits emission rate of live sources.
type pacer struct {
	live     bool
	interval time.Duration
	next     time.Time
}

func (p *pacer) wait(ctx context.Context) error {
	if !p.live || p.interval <= 0 {
		return nil
	}
	now := time.Now()
	if p.next.IsZero() {
		p.next = now
	}
	if d := p.next.Sub(now); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.next = p.next.Add(p.interval)
	return nil
}

func newPacer(env Env, caps graph.Caps) (pacer, error) {
	live, err := boolProp(env, "is-live", false)
	if err != nil {
		return pacer{}, err
	}
	num, den, ok := caps.Fraction("framerate")
	if v, set := env.Props().Get("framerate"); set {
		caps := graph.Caps{Fields: []graph.Field{{Key: "framerate", Value: v}}}
		num, den, ok = caps.Fraction("framerate")
		if !ok {
			return pacer{}, fmt.Errorf("%w: framerate %q", ErrBadProperty, v)
		}
	}
	p := pacer{live: live}
	if ok && num > 0 && den > 0 {
		p.interval = time.Second * time.Duration(den) / time.Duration(num)
	} else if live {
		p.interval = time.Second / 30
	}
	return p, nil
}

// VideoTestSrc generates synthetic frames.
type VideoTestSrc struct {
	base
	format  Format
	info    tensor.Info
	pattern pattern
	limit   int
	count   int
	pacer
	rand *rand.Rand
}

func init() {
	Register("videotestsrc", newVideoTestSrc)
	Register("audiotestsrc", newAudioTestSrc)
}

func newVideoTestSrc(env Env) (Element, error) {
	caps := env.Graph.DownstreamCaps(env.Element)
	f := VideoFormat("RGB", 320, 240)
	if caps.Media == graph.MediaVideo || caps.IsEmpty() {
		if v, ok := caps.Get("format"); ok {
			f.Sample = v
		}
		if v, ok := caps.Int("width"); ok {
			f.Width = v
		}
		if v, ok := caps.Int("height"); ok {
			f.Height = v
		}
	}
	ch, ok := channelsOf(f.Sample)
	if !ok {
		return nil, fmt.Errorf("%w: pixel format %q", ErrUnsupported, f.Sample)
	}
	f.Channels = ch
	info, err := f.FrameInfo(1)
	if err != nil {
		return nil, err
	}
	limit, err := intProp(env, "num-buffers", -1)
	if err != nil {
		return nil, err
	}
	p, err := parsePattern(env.Props().String("pattern", "smpte"))
	if err != nil {
		return nil, err
	}
	pc, err := newPacer(env, caps)
	if err != nil {
		return nil, err
	}
	return &VideoTestSrc{
		base:    newBase(env),
		format:  f,
		info:    info,
		pattern: p,
		limit:   limit,
		pacer:   pc,
		rand:    rand.New(rand.NewSource(1)),
	}, nil
}

func parsePattern(s string) (pattern, error) {
	if p, ok := patternNames[s]; ok {
		return p, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= int(patternCheckers) {
		return pattern(n), nil
	}
	return 0, fmt.Errorf("%w: pattern %q", ErrBadProperty, s)
}

// Read returns next frame.
func (s *VideoTestSrc) Read(ctx context.Context) (Buffer, error) {
	if s.limit >= 0 && s.count >= s.limit {
		return Buffer{}, io.EOF
	}
	if err := s.wait(ctx); err != nil {
		return Buffer{}, err
	}
	rgb := s.render()
	pix, err := convertPixels(rgb, "RGB", s.format.Sample)
	if err != nil {
		return Buffer{}, err
	}
	d, err := tensor.NewData(s.info, pix)
	if err != nil {
		return Buffer{}, err
	}
	s.count++
	return Buffer{Data: d, Format: s.format}, nil
}

func (s *VideoTestSrc) render() []byte {
	w, h := s.format.Width, s.format.Height
	rgb := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var c [3]byte
			switch s.pattern {
			case patternSMPTE:
				c = smpteBars[x*len(smpteBars)/w]
			case patternSnow:
				v := byte(s.rand.Intn(256))
				c = [3]byte{v, v, v}
			case patternWhite:
				c = [3]byte{255, 255, 255}
			case patternRed:
				c = [3]byte{255, 0, 0}
			case patternGreen:
				c = [3]byte{0, 255, 0}
			case patternBlue:
				c = [3]byte{0, 0, 255}
			case patternCheckers:
				if (x+y)%2 == 0 {
					c = [3]byte{255, 255, 255}
				}
			}
			copy(rgb[(y*w+x)*3:], c[:])
		}
	}
	return rgb
}

// AudioTestSrc generates a sine wave.
type AudioTestSrc struct {
	base
	format  Format
	samples int
	freq    float64
	volume  float64
	silence bool
	limit   int
	count   int
	phase   float64
	pacer
}

func newAudioTestSrc(env Env) (Element, error) {
	caps := env.Graph.DownstreamCaps(env.Element)
	f := AudioFormat("S16LE", 44100, 1)
	if caps.Media == graph.MediaAudio || caps.IsEmpty() {
		if v, ok := caps.Get("format"); ok {
			f.Sample = v
		}
		if v, ok := caps.Int("rate"); ok {
			f.Rate = v
		}
		if v, ok := caps.Int("channels"); ok {
			f.Channels = v
		}
	}
	if _, ok := f.SampleType(); !ok || f.Rate <= 0 {
		return nil, fmt.Errorf("%w: audio %s at %d Hz", ErrUnsupported, f.Sample, f.Rate)
	}
	samples, err := intProp(env, "samplesperbuffer", 1024)
	if err != nil {
		return nil, err
	}
	limit, err := intProp(env, "num-buffers", -1)
	if err != nil {
		return nil, err
	}
	freq, err := floatProp(env, "freq", 440)
	if err != nil {
		return nil, err
	}
	volume, err := floatProp(env, "volume", 0.8)
	if err != nil {
		return nil, err
	}
	wave := env.Props().String("wave", "sine")
	if wave != "sine" && wave != "0" && wave != "silence" && wave != "4" {
		return nil, fmt.Errorf("%w: wave %q", ErrUnsupported, wave)
	}
	s := AudioTestSrc{
		base:    newBase(env),
		format:  f,
		samples: samples,
		freq:    freq,
		volume:  volume,
		silence: wave == "silence" || wave == "4",
		limit:   limit,
	}
	live, err := boolProp(env, "is-live", false)
	if err != nil {
		return nil, err
	}
	s.pacer = pacer{live: live, interval: time.Duration(samples) * time.Second / time.Duration(f.Rate)}
	return &s, nil
}

// Read returns next buffer of samples.
func (s *AudioTestSrc) Read(ctx context.Context) (Buffer, error) {
	if s.limit >= 0 && s.count >= s.limit {
		return Buffer{}, io.EOF
	}
	if err := s.wait(ctx); err != nil {
		return Buffer{}, err
	}
	info, err := s.format.FrameInfo(s.samples)
	if err != nil {
		return Buffer{}, err
	}
	t := info.Tensors[0].Type
	values := make([]float64, s.samples*s.format.Channels)
	scale := fullScale(t)
	step := 2 * math.Pi * s.freq / float64(s.format.Rate)
	for i := 0; i < s.samples; i++ {
		v := 0.0
		if !s.silence {
			v = math.Sin(s.phase) * s.volume * scale
		}
		s.phase = math.Mod(s.phase+step, 2*math.Pi)
		for c := 0; c < s.format.Channels; c++ {
			values[i*s.format.Channels+c] = v
		}
	}
	d := info.Allocate()
	tensor.PutFloat64s(t, d.Tensor(0), values)
	s.count++
	return Buffer{Data: d, Format: s.format}, nil
}

// fullScale returns amplitude of full-scale signal for sample type.
func fullScale(t tensor.Type) float64 {
	switch t {
	case tensor.Int8, tensor.Uint8:
		return math.MaxInt8
	case tensor.Int16, tensor.Uint16:
		return math.MaxInt16
	case tensor.Int32, tensor.Uint32:
		return math.MaxInt32
	}
	return 1
}

func floatProp(env Env, key string, def float64) (float64, error) {
	v, ok := env.Props().Get(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadProperty, key, v)
	}
	return f, nil
}
