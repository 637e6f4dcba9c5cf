package inference

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tphakala/ambient-go/internal/cpuspec"
	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/features"
	"github.com/tphakala/ambient-go/internal/logger"
)

// ModelOptions configures a TFLite interpreter.
type ModelOptions struct {
	Threads    int  // 0 selects a count from the CPU topology
	UseXNNPACK bool // try the XNNPACK delegate, falling back to the CPU kernels
}

// interpreter owns a loaded model and its interpreter.
type interpreter struct {
	name     string
	path     string
	model    *tflite.Model
	options  *tflite.InterpreterOptions
	delegate delegates.Delegater
	interp   *tflite.Interpreter
}

func openInterpreter(name, path string, opts ModelOptions) (*interpreter, error) {
	start := time.Now()
	log := GetLogger().With(logger.String("model", name))

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryModelLoad).
			ModelContext(path).
			Build()
	}

	model := tflite.NewModelFromFile(path)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model %s", name)).
			Component("inference").
			Category(errors.CategoryModelLoad).
			FileContext(path, info.Size()).
			Timing("model-load", time.Since(start)).
			Build()
	}

	threads := cpuspec.ThreadCount(opts.Threads)
	options := tflite.NewInterpreterOptions()

	var delegate delegates.Delegater
	if opts.UseXNNPACK {
		d := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: bounded by CPU count
		if d == nil {
			log.Warn("failed to create XNNPACK delegate, falling back to default CPU kernels")
			options.SetNumThread(threads)
		} else {
			delegate = d
			options.AddDelegate(d)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, _ any) {
		log.Error("TFLite error", logger.String("message", msg))
	}, nil)

	it := &interpreter{name: name, path: path, model: model, options: options, delegate: delegate}

	it.interp = tflite.NewInterpreter(model, options)
	if it.interp == nil {
		it.close()
		return nil, errors.New(fmt.Errorf("cannot create interpreter for %s", name)).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(path).
			Context("threads", threads).
			Context("use_xnnpack", opts.UseXNNPACK).
			Build()
	}
	if status := it.interp.AllocateTensors(); status != tflite.OK {
		it.close()
		return nil, errors.New(fmt.Errorf("tensor allocation failed for %s: %v", name, status)).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(path).
			Build()
	}

	// the interpreter holds its own copy of the flatbuffer
	runtime.GC()

	log.Info("model initialized",
		logger.String("path", path),
		logger.Int("threads", threads),
		logger.Bool("xnnpack", delegate != nil),
		logger.Duration("elapsed", time.Since(start)))

	return it, nil
}

func (it *interpreter) invoke() error {
	if status := it.interp.Invoke(); status != tflite.OK {
		return errors.New(fmt.Errorf("tensor invoke failed: %v", status)).
			Component("inference").
			Category(errors.CategoryAudioAnalysis).
			Context("model", it.name).
			Build()
	}
	return nil
}

func (it *interpreter) close() {
	if it.interp != nil {
		it.interp.Delete()
		it.interp = nil
	}
	if it.delegate != nil {
		it.delegate.Delete()
		it.delegate = nil
	}
	if it.options != nil {
		it.options.Delete()
		it.options = nil
	}
	if it.model != nil {
		it.model.Delete()
		it.model = nil
	}
}

// tensorSize is the element count of t.
func tensorSize(t *tflite.Tensor) int {
	n := 1
	for i := range t.NumDims() {
		n *= t.Dim(i)
	}
	return n
}

// TFLiteEmbedder runs one example per invocation through an embedding
// network whose input holds rows×bands floats.
type TFLiteEmbedder struct {
	mu    sync.Mutex
	it    *interpreter
	rows  int
	bands int
	dim   int
}

// NewTFLiteEmbedder loads the embedding network and checks that its input
// matches rows×bands.
func NewTFLiteEmbedder(path string, rows, bands int, opts ModelOptions) (*TFLiteEmbedder, error) {
	it, err := openInterpreter("embedding", path, opts)
	if err != nil {
		return nil, err
	}

	input := it.interp.GetInputTensor(0)
	output := it.interp.GetOutputTensor(0)
	if input == nil || output == nil {
		it.close()
		return nil, errors.Newf("embedding model has no input or output tensor").
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(path).
			Build()
	}
	if input.Type() != tflite.Float32 || output.Type() != tflite.Float32 {
		it.close()
		return nil, errors.Newf("embedding model tensors must be float32").
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(path).
			Build()
	}
	if got := tensorSize(input); got != rows*bands {
		it.close()
		return nil, shapeError("embedding input", rows*bands, got)
	}

	return &TFLiteEmbedder{it: it, rows: rows, bands: bands, dim: tensorSize(output)}, nil
}

// Dim is the embedding length.
func (e *TFLiteEmbedder) Dim() int {
	return e.dim
}

// Embed returns one embedding per example, in order. ctx is checked between
// invocations.
func (e *TFLiteEmbedder) Embed(ctx context.Context, examples []features.Example) ([][]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.it == nil {
		return nil, errors.Newf("embedding model is closed").
			Component("inference").
			Category(errors.CategoryState).
			Build()
	}

	out := make([][]float64, 0, len(examples))
	for _, ex := range examples {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(err).
				Component("inference").
				Category(errors.CategoryCancellation).
				Build()
		}
		if len(ex) != e.rows {
			return nil, shapeError("example rows", e.rows, len(ex))
		}

		input := e.it.interp.GetInputTensor(0).Float32s()
		for r, row := range ex {
			if len(row) != e.bands {
				return nil, shapeError("example bands", e.bands, len(row))
			}
			for b, v := range row {
				input[r*e.bands+b] = float32(v)
			}
		}

		if err := e.it.invoke(); err != nil {
			return nil, err
		}

		raw := e.it.interp.GetOutputTensor(0).Float32s()
		emb := make([]float64, len(raw))
		for i, v := range raw {
			emb[i] = float64(v)
		}
		out = append(out, emb)
	}
	return out, nil
}

// Close releases the interpreter.
func (e *TFLiteEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.it != nil {
		e.it.close()
		e.it = nil
	}
	return nil
}

// TFLiteAggregator scores a [maxFrames][dim] sequence. The model takes the
// sequence as a float32 input and, when present, the true frame count as an
// int32 input.
type TFLiteAggregator struct {
	mu         sync.Mutex
	it         *interpreter
	frames     int
	dim        int
	seqInput   int
	countInput int // -1 when the model has no frame count input
	classes    int
}

// NewTFLiteAggregator loads the sequence classifier and locates its inputs.
func NewTFLiteAggregator(path string, maxFrames, dim int, opts ModelOptions) (*TFLiteAggregator, error) {
	it, err := openInterpreter("classifier", path, opts)
	if err != nil {
		return nil, err
	}

	a := &TFLiteAggregator{it: it, frames: maxFrames, dim: dim, seqInput: -1, countInput: -1}
	for i := range it.interp.GetInputTensorCount() {
		t := it.interp.GetInputTensor(i)
		switch {
		case t.Type() == tflite.Float32 && a.seqInput < 0:
			if got := tensorSize(t); got != maxFrames*dim {
				it.close()
				return nil, shapeError("classifier sequence input", maxFrames*dim, got)
			}
			a.seqInput = i
		case t.Type() == tflite.Int32 && a.countInput < 0:
			a.countInput = i
		}
	}
	if a.seqInput < 0 {
		it.close()
		return nil, errors.Newf("classifier model has no float32 sequence input").
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(path).
			Build()
	}
	if a.countInput < 0 {
		GetLogger().Warn("classifier model has no frame count input, padding is not masked",
			logger.String("path", path))
	}

	output := it.interp.GetOutputTensor(0)
	if output == nil || output.Type() != tflite.Float32 {
		it.close()
		return nil, errors.Newf("classifier model must have a float32 output").
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(path).
			Build()
	}
	a.classes = tensorSize(output)

	return a, nil
}

// NumClasses is the score vector length.
func (a *TFLiteAggregator) NumClasses() int {
	return a.classes
}

// Score runs the classifier over a prepared sequence.
func (a *TFLiteAggregator) Score(ctx context.Context, sequence [][]float64, trueLength int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryCancellation).
			Build()
	}
	if len(sequence) != a.frames {
		return nil, shapeError("classifier frames", a.frames, len(sequence))
	}
	for _, row := range sequence {
		if len(row) != a.dim {
			return nil, shapeError("classifier dim", a.dim, len(row))
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.it == nil {
		return nil, errors.Newf("classifier model is closed").
			Component("inference").
			Category(errors.CategoryState).
			Build()
	}

	flatten(a.it.interp.GetInputTensor(a.seqInput).Float32s(), sequence)
	if a.countInput >= 0 {
		a.it.interp.GetInputTensor(a.countInput).Int32s()[0] = int32(trueLength) //nolint:gosec // G115: bounded by max frames
	}

	if err := a.it.invoke(); err != nil {
		return nil, err
	}

	raw := a.it.interp.GetOutputTensor(0).Float32s()
	scores := make([]float64, len(raw))
	for i, v := range raw {
		scores[i] = float64(v)
	}
	return scores, nil
}

// Close releases the interpreter.
func (a *TFLiteAggregator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.it != nil {
		a.it.close()
		a.it = nil
	}
	return nil
}
