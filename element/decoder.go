package element

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nnsuite/nnpipe/tensor"
)

// Decoder converts tensors back into media.
type Decoder struct {
	base
	mode   string
	pixel  string
	labels []string
}

func init() {
	Register("tensor_decoder", newDecoder)
}

func newDecoder(env Env) (Element, error) {
	d := Decoder{base: newBase(env), mode: env.Props().String("mode", "")}
	switch d.mode {
	case "direct_video":
		d.pixel = env.Props().String("option1", "")
		if d.pixel != "" {
			if _, ok := channelsOf(d.pixel); !ok {
				return nil, fmt.Errorf("%w: pixel format %q", ErrBadProperty, d.pixel)
			}
		}
	case "octet_stream", "flatbuf":
	case "image_labeling":
		path := env.Props().String("option1", "")
		if path == "" {
			return nil, fmt.Errorf("%w: image_labeling requires labels file in option1", ErrBadProperty)
		}
		labels, err := readLabels(path)
		if err != nil {
			return nil, err
		}
		d.labels = labels
	case "":
		return nil, fmt.Errorf("%w: mode is required", ErrBadProperty)
	default:
		return nil, fmt.Errorf("%w: decoder mode %q", ErrUnsupported, d.mode)
	}
	return &d, nil
}

func readLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var labels []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		labels = append(labels, strings.TrimSpace(s.Text()))
	}
	return labels, s.Err()
}

// Process decodes the buffer.
func (d *Decoder) Process(_ context.Context, _ int, in Buffer, emit EmitFunc) error {
	switch d.mode {
	case "direct_video":
		return d.video(in, emit)
	case "image_labeling":
		return d.label(in, emit)
	case "flatbuf":
		return d.serialize(in, emit)
	}
	var b []byte
	for i := 0; i < in.Data.Len(); i++ {
		b = append(b, in.Data.Tensor(i)...)
	}
	data, err := octetData(b)
	if err != nil {
		return err
	}
	return emit(0, derive(in, data, Format{Media: MediaOctet}))
}

func (d *Decoder) video(in Buffer, emit EmitFunc) error {
	t := in.Data.Info().Tensors[0]
	if t.Type != tensor.Uint8 {
		return fmt.Errorf("%w: direct_video of %v", ErrUnsupported, t.Type)
	}
	ch, w, h := t.Dimension.At(0), t.Dimension.At(1), t.Dimension.At(2)
	pixel := d.pixel
	if pixel == "" {
		switch ch {
		case 1:
			pixel = "GRAY8"
		case 3:
			pixel = "RGB"
		case 4:
			pixel = "RGBA"
		default:
			return fmt.Errorf("%w: direct_video of %d channels", ErrUnsupported, ch)
		}
	}
	if n, _ := channelsOf(pixel); n != ch {
		return fmt.Errorf("%w: %s frame from %d channels", ErrShapeMismatch, pixel, ch)
	}
	f := VideoFormat(pixel, w, h)
	data, err := frameData(f, in.Data.Tensor(0)[:ch*w*h])
	if err != nil {
		return err
	}
	return emit(0, derive(in, data, f))
}

// serialize emits the tensor set encoded into a single frame.
func (d *Decoder) serialize(in Buffer, emit EmitFunc) error {
	b, err := tensor.Marshal(in.Data)
	if err != nil {
		return err
	}
	data, err := octetData(b)
	if err != nil {
		return err
	}
	return emit(0, derive(in, data, Format{Media: MediaFlatbuf}))
}

// label emits the label of the highest score as text.
func (d *Decoder) label(in Buffer, emit EmitFunc) error {
	t := in.Data.Info().Tensors[0]
	scores := tensor.Float64s(t.Type, in.Data.Tensor(0))
	if len(scores) == 0 {
		return nil
	}
	best := 0
	for i, v := range scores {
		if v > scores[best] {
			best = i
		}
	}
	label := fmt.Sprint(best)
	if best < len(d.labels) {
		label = d.labels[best]
	}
	data, err := octetData([]byte(label))
	if err != nil {
		return err
	}
	out := derive(in, data, Format{Media: MediaOctet})
	out.Meta = withMeta(in.Meta, "label", label)
	return emit(0, out)
}

func octetData(b []byte) (*tensor.Data, error) {
	info := tensor.Info{Tensors: []tensor.Tensor{{Type: tensor.Uint8, Dimension: tensor.Dimension{uint32(max(len(b), 1))}}}}
	if len(b) == 0 {
		b = []byte{0}
	}
	return tensor.NewData(info, b)
}

// withMeta returns copy of meta with key set.
func withMeta(meta map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[key] = value
	return out
}
