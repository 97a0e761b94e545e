package onnx

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/errkind"
)

// handle wraps one runtime session. Run may be called concurrently; Close
// waits for in-flight runs.
type handle struct {
	width int

	mu      sync.RWMutex
	session *ort.DynamicAdvancedSession
}

func (h *handle) InputWidth() int { return h.width }

func (h *handle) Run(input []float32) ([]float32, error) {
	const op = "onnx.run"
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.session == nil {
		return nil, errkind.Wrap(op, model.ErrInference, fmt.Errorf("session closed"))
	}

	in, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return nil, errkind.Wrap(op, model.ErrInference, err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := h.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, errkind.Wrap(op, model.ErrInference, err)
	}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errkind.Wrap(op, model.ErrInference, fmt.Errorf("output is %T, want float32 tensor", outputs[0]))
	}
	// The tensor's backing slice is freed with it.
	data := out.GetData()
	result := make([]float32, len(data))
	copy(result, data)
	return result, nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return nil
	}
	err := h.session.Destroy()
	h.session = nil
	return err
}
