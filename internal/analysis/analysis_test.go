package analysis

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/ambient-go/internal/analysis/processor"
	ambientaudio "github.com/tphakala/ambient-go/internal/audio"
	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/events"
	"github.com/tphakala/ambient-go/internal/httpserver"
	"github.com/tphakala/ambient-go/internal/inference"
	"github.com/tphakala/ambient-go/internal/logger"
	"github.com/tphakala/ambient-go/internal/segmenter"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type fakeClassifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeClassifier) PredictPCM(context.Context, []byte, int) ([]inference.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []inference.Prediction{{Index: 0, Label: "Speech", Score: 0.8}}, nil
}

type fakePredictor struct {
	channels, rate int
	samples        []float64
	err            error
}

func (f *fakePredictor) Predict(_ context.Context, samples []float64, channels, rate int) ([]inference.Prediction, error) {
	f.samples, f.channels, f.rate = samples, channels, rate
	if f.err != nil {
		return nil, f.err
	}
	return []inference.Prediction{
		{Index: 2, Label: "Dog", Score: 0.9},
		{Index: 7, Label: "Bark", Score: 0.456},
	}, nil
}

// gatedSource releases a chunk only when the consumer is waiting.
type gatedSource struct {
	seg    *segmenter.Segmenter
	chunks [][]byte
}

func (g *gatedSource) Read(ctx context.Context, _ int) ([]byte, error) {
	if len(g.chunks) == 0 {
		return nil, io.EOF
	}
	for !g.seg.Ready() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	c := g.chunks[0]
	g.chunks = g.chunks[1:]
	return c, nil
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestPipelineEndsWithSource(t *testing.T) {
	seg, err := segmenter.New(4, 8, segmenter.WithLogger(logger.Discard()))
	require.NoError(t, err)

	history := events.NewHistory(10)
	clf := &fakeClassifier{}
	p := &Pipeline{
		Source:    &gatedSource{seg: seg, chunks: [][]byte{{1, 0, 2, 0}, {3, 0, 4, 0}}},
		Segmenter: seg,
		Processor: processor.New(clf, 16000,
			processor.WithActions(processor.NewHistoryAction(history)),
			processor.WithLogger(logger.Discard())),
		ChunkSamples: 2,
		Server:       httpserver.New(freeAddr(t), history, httpserver.WithLogger(logger.Discard())),
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(t.Context()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop at end of stream")
	}

	assert.Equal(t, 2, history.Len())
	assert.Equal(t, "Speech: 0.80", history.Snapshot()[0].Text)
}

func TestPipelineSkipsBackendFailures(t *testing.T) {
	seg, err := segmenter.New(2, 2, segmenter.WithLogger(logger.Discard()))
	require.NoError(t, err)

	history := events.NewHistory(10)
	clf := &fakeClassifier{err: errors.NewStd("invoke failed")}
	p := &Pipeline{
		Source:    &gatedSource{seg: seg, chunks: [][]byte{{1, 0}, {2, 0}, {3, 0}}},
		Segmenter: seg,
		Processor: processor.New(clf, 16000,
			processor.WithActions(processor.NewHistoryAction(history)),
			processor.WithLogger(logger.Discard())),
		ChunkSamples: 1,
	}

	require.NoError(t, p.Run(t.Context()))
	assert.Equal(t, 3, clf.calls, "every buffer is attempted")
	assert.Zero(t, history.Len())
}

func TestPipelineCancel(t *testing.T) {
	seg, err := segmenter.New(2, 4, segmenter.WithLogger(logger.Discard()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	p := &Pipeline{
		Source:       ambientaudio.NewReaderSource(pr),
		Segmenter:    seg,
		Processor:    processor.New(&fakeClassifier{}, 16000, processor.WithLogger(logger.Discard())),
		ChunkSamples: 1,
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// nothing is written; cancellation alone must release the stalled read
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline ignored cancellation")
	}
}

func TestCaptureOptionsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    CaptureOptions
		wantErr bool
	}{
		{"one second", CaptureOptions{Period: time.Second}, false},
		{"ten seconds", CaptureOptions{Period: 10 * time.Second, Cycles: 3}, false},
		{"too short", CaptureOptions{Period: 500 * time.Millisecond}, true},
		{"too long", CaptureOptions{Period: 11 * time.Second}, true},
		{"negative cycles", CaptureOptions{Period: time.Second, Cycles: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				return
			}
			require.NoError(t, err)
		})
	}
	assert.ErrorIs(t, CaptureOptions{}.Validate(), ErrInvalidPeriod)
}

func TestRunCycles(t *testing.T) {
	t.Parallel()

	// rate 4 with a one second period reads 4 samples (8 bytes) per cycle
	stream := bytes.Repeat([]byte{1, 0}, 4*3)

	tests := []struct {
		name   string
		cycles int
		want   int
	}{
		{"until end of stream", 0, 3},
		{"bounded", 2, 2},
		{"more than available", 5, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fs := afero.NewMemMapFs()
			clf := &fakeClassifier{}
			proc := processor.New(clf, 4,
				processor.WithExporter(processor.NewExporter(fs, "/cycles", 4, processor.NameBySequence)),
				processor.WithLogger(logger.Discard()))

			src := ambientaudio.NewReaderSource(bytes.NewReader(stream))
			n, err := runCycles(t.Context(), src, proc, CaptureOptions{Period: time.Second, Cycles: tt.cycles}, 4)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
			assert.Equal(t, tt.want, clf.calls)

			files, err := afero.ReadDir(fs, "/cycles")
			require.NoError(t, err)
			assert.Len(t, files, tt.want)
		})
	}
}

func TestRunCyclesContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	clf := &fakeClassifier{err: errors.NewStd("bad model")}
	proc := processor.New(clf, 4, processor.WithLogger(logger.Discard()))
	src := ambientaudio.NewReaderSource(bytes.NewReader(make([]byte, 16)))

	n, err := runCycles(t.Context(), src, proc, CaptureOptions{Period: time.Second}, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func writeWAV(t *testing.T, fs afero.Fs, path string, data []int, rate, channels int) {
	t.Helper()
	f, err := fs.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: rate, NumChannels: channels},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func TestClassifyFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "/clip.wav", []int{16384, -16384, 0, 8192}, 44100, 2)

	var out bytes.Buffer
	p := &fakePredictor{}
	preds, err := classifyFile(t.Context(), fs, "/clip.wav", p, &out)
	require.NoError(t, err)

	assert.Len(t, preds, 2)
	assert.Equal(t, "Dog: 0.90, Bark: 0.46\n", out.String())
	assert.Equal(t, 2, p.channels)
	assert.Equal(t, 44100, p.rate)
	assert.InDeltaSlice(t, []float64{0.5, -0.5, 0, 0.25}, p.samples, 1e-9)
}

func TestClassifyFileErrors(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/dir.wav", 0o755))
	writeWAV(t, fs, "/ok.wav", []int{0, 0}, 16000, 1)

	var out bytes.Buffer

	_, err := classifyFile(t.Context(), fs, "/missing.wav", &fakePredictor{}, &out)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	_, err = classifyFile(t.Context(), fs, "/dir.wav", &fakePredictor{}, &out)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = classifyFile(t.Context(), fs, "/ok.wav", &fakePredictor{err: errors.NewStd("backend")}, &out)
	require.Error(t, err)
	assert.Empty(t, out.String())
}

func TestSourceName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "default", sourceName(""))
	assert.Equal(t, "stdin", sourceName(StdinSource))
	assert.Equal(t, "hw:1,0", sourceName("hw:1,0"))
}
