package filter

import (
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/nnsuite/nnpipe/tensor"
)

// DenseModel is a stack of fully connected layers stored as YAML:
//
//	input:
//	  type: uint8
//	  dimension: "4:1:1:1"
//	output:
//	  type: float32
//	layers:
//	  - weights: [[1, 0, 0, 0], [0, 1, 0, 0]]
//	    bias: [0.5, 0.5]
//	    activation: relu
//
// Input tensor is flattened into a vector, output is a vector of the last
// layer size.
type DenseModel struct {
	Input  DenseTensor  `yaml:"input"`
	Output DenseTensor  `yaml:"output"`
	Layers []DenseLayer `yaml:"layers"`
}

// DenseTensor declares tensor of the model.
type DenseTensor struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Dimension string `yaml:"dimension"`
}

// DenseLayer computes activation(weights*x + bias).
type DenseLayer struct {
	Weights    [][]float64 `yaml:"weights"`
	Bias       []float64   `yaml:"bias"`
	Activation string      `yaml:"activation"`
}

type dense struct {
	in, out tensor.Info
	layers  []denseLayer
}

type denseLayer struct {
	w          *mat.Dense
	b          *mat.VecDense
	activation string
}

func init() {
	Register("gonum-dense", FrameworkFunc(openDense))
}

// LoadDenseModel reads model file.
func LoadDenseModel(path string) (*DenseModel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m DenseModel
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModel, path, err)
	}
	return &m, nil
}

func openDense(p Properties) (Instance, error) {
	if len(p.Model) == 0 {
		return nil, fmt.Errorf("%w: model path is required", ErrModel)
	}
	m, err := LoadDenseModel(p.Model[0])
	if err != nil {
		return nil, err
	}
	return NewDense(m)
}

// NewDense builds instance of the model.
func NewDense(m *DenseModel) (Instance, error) {
	if len(m.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrModel)
	}
	d := dense{}
	var err error
	if d.in, err = tensor.ParseInfo(m.Input.Dimension, orDefault(m.Input.Type, "float32"), m.Input.Name); err != nil {
		return nil, fmt.Errorf("%w: input: %v", ErrModel, err)
	}
	size := d.in.Tensors[0].Dimension.Count()
	for i, l := range m.Layers {
		rows := len(l.Weights)
		if rows == 0 || len(l.Weights[0]) != size {
			return nil, fmt.Errorf("%w: layer %d expects %d inputs", ErrModel, i, size)
		}
		flat := make([]float64, 0, rows*size)
		for _, row := range l.Weights {
			if len(row) != size {
				return nil, fmt.Errorf("%w: layer %d has ragged weights", ErrModel, i)
			}
			flat = append(flat, row...)
		}
		bias := l.Bias
		if bias == nil {
			bias = make([]float64, rows)
		}
		if len(bias) != rows {
			return nil, fmt.Errorf("%w: layer %d has %d biases for %d outputs", ErrModel, i, len(bias), rows)
		}
		switch l.Activation {
		case "", "none", "relu", "sigmoid", "softmax":
		default:
			return nil, fmt.Errorf("%w: layer %d activation %q", ErrModel, i, l.Activation)
		}
		d.layers = append(d.layers, denseLayer{
			w:          mat.NewDense(rows, size, flat),
			b:          mat.NewVecDense(rows, append([]float64(nil), bias...)),
			activation: l.Activation,
		})
		size = rows
	}
	dim := m.Output.Dimension
	if dim == "" {
		dim = fmt.Sprintf("%d:1:1:1", size)
	}
	if d.out, err = tensor.ParseInfo(dim, orDefault(m.Output.Type, "float32"), m.Output.Name); err != nil {
		return nil, fmt.Errorf("%w: output: %v", ErrModel, err)
	}
	if d.out.Tensors[0].Dimension.Count() != size {
		return nil, fmt.Errorf("%w: output %v for %d values", ErrModel, d.out, size)
	}
	return &d, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (d *dense) InputInfo() tensor.Info  { return d.in.Clone() }
func (d *dense) OutputInfo() tensor.Info { return d.out.Clone() }
func (d *dense) Close() error            { return nil }

// Invoke evaluates the layers.
func (d *dense) Invoke(in *tensor.Data) (*tensor.Data, error) {
	if in.Len() != 1 || len(in.Tensor(0)) != d.in.Size(0) {
		return nil, fmt.Errorf("%w: input %v, expected %v", ErrModel, in.Info(), d.in)
	}
	x := mat.NewVecDense(d.in.Tensors[0].Dimension.Count(), tensor.Float64s(d.in.Tensors[0].Type, in.Tensor(0)))
	for _, l := range d.layers {
		rows, _ := l.w.Dims()
		y := mat.NewVecDense(rows, nil)
		y.MulVec(l.w, x)
		y.AddVec(y, l.b)
		activate(l.activation, y)
		x = y
	}
	out := d.out.Allocate()
	tensor.PutFloat64s(d.out.Tensors[0].Type, out.Tensor(0), x.RawVector().Data)
	return out, nil
}

func activate(name string, v *mat.VecDense) {
	n := v.Len()
	switch name {
	case "relu":
		for i := 0; i < n; i++ {
			v.SetVec(i, math.Max(0, v.AtVec(i)))
		}
	case "sigmoid":
		for i := 0; i < n; i++ {
			v.SetVec(i, 1/(1+math.Exp(-v.AtVec(i))))
		}
	case "softmax":
		maxV := mat.Max(v)
		var sum float64
		for i := 0; i < n; i++ {
			e := math.Exp(v.AtVec(i) - maxV)
			v.SetVec(i, e)
			sum += e
		}
		v.ScaleVec(1/sum, v)
	}
}
