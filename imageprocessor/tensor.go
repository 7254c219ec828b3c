package imageprocessor

import "fmt"

// Shape is a height x width x channels layout
type Shape struct {
	Height   int
	Width    int
	Channels int
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Height, s.Width, s.Channels)
}

// Size is the number of values a tensor of this shape holds.
func (s Shape) Size() int {
	return s.Height * s.Width * s.Channels
}

// Tensor is a dense HWC float32 array, already normalized for the model.
type Tensor struct {
	Shape
	Data []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(shape Shape) Tensor {
	return Tensor{Shape: shape, Data: make([]float32, shape.Size())}
}

// At returns the value at row y, column x, channel c.
func (t Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width+x)*t.Channels+c]
}

// Set stores the value at row y, column x, channel c.
func (t Tensor) Set(y, x, c int, v float32) {
	t.Data[(y*t.Width+x)*t.Channels+c] = v
}

// Valid reports whether the data length agrees with the shape.
func (t Tensor) Valid() bool {
	return t.Size() > 0 && len(t.Data) == t.Size()
}
