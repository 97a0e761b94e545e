// Package onnx builds model handles on top of ONNX Runtime using the CPU
// execution provider.
package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/errkind"
	"github.com/okian/motionscore/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLibraryPath sets the onnxruntime shared library location. Empty keeps
// the platform default lookup.
func WithLibraryPath(path string) Option {
	return func(e *Engine) {
		e.libraryPath = path
	}
}

// WithIntraOpThreads caps the threads a single Run may use. Zero leaves the
// runtime default.
func WithIntraOpThreads(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.intraOpThreads = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine turns serialized ONNX graphs into model handles.
type Engine struct {
	libraryPath    string
	intraOpThreads int
	logger         logger.Logger

	mu sync.Mutex
}

// NewEngine creates an engine. The runtime environment is initialised lazily
// by the first Build.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ensureEnvironment initialises the process-wide runtime once. A failure is
// not remembered, so a later Build retries.
func (e *Engine) ensureEnvironment(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if e.libraryPath != "" {
		ort.SetSharedLibraryPath(e.libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	e.logger.Info(ctx, "onnxruntime initialized",
		logger.String("version", ort.GetVersion()),
		logger.String("library", e.libraryPath),
	)
	return nil
}

// Build deserializes data into a ready-to-run handle.
func (e *Engine) Build(ctx context.Context, data []byte) (model.Handle, error) {
	const op = "onnx.build"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.ensureEnvironment(ctx); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(data)
	if err != nil {
		return nil, errkind.Wrap(op, model.ErrCorruptModel, err)
	}
	sig, err := describe(inputs, outputs)
	if err != nil {
		return nil, errkind.Wrap(op, model.ErrCorruptModel, err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%s: session options: %w", op, err)
	}
	defer opts.Destroy()
	if e.intraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(e.intraOpThreads); err != nil {
			return nil, fmt.Errorf("%s: intra-op threads: %w", op, err)
		}
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(data,
		[]string{sig.input}, []string{sig.output}, opts)
	if err != nil {
		return nil, errkind.Wrap(op, model.ErrCorruptModel, err)
	}

	e.logger.Info(ctx, "model session created",
		logger.String("input", sig.input),
		logger.String("output", sig.output),
		logger.Int("input_width", sig.width),
	)
	return &handle{session: session, width: sig.width}, nil
}

// Shutdown tears down the runtime environment. Handles must be closed first.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

type signature struct {
	input  string
	output string
	width  int
}

// describe picks the first input and output and derives the flattened input
// width from the input's second dimension. Dynamic or missing dimensions
// yield width 0.
func describe(inputs, outputs []ort.InputOutputInfo) (signature, error) {
	if len(inputs) < 1 {
		return signature{}, fmt.Errorf("model declares no inputs")
	}
	if len(outputs) < 1 {
		return signature{}, fmt.Errorf("model declares no outputs")
	}
	sig := signature{input: inputs[0].Name, output: outputs[0].Name}
	if dims := inputs[0].Dimensions; len(dims) >= 2 && dims[1] > 0 {
		sig.width = int(dims[1])
	}
	return sig, nil
}
