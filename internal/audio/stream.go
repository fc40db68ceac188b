package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// RenderSource produces interleaved stereo float32 frames. Process is the
// real-time callback: it must not block or allocate.
type RenderSource interface {
	Process(dst []float32)
}

// FinishingSource is a RenderSource that can signal end of playback. When
// Finished returns true the stream returns io.EOF on the next Read.
type FinishingSource interface {
	RenderSource
	Finished() bool
}

// StreamReader adapts a RenderSource to the byte stream the audio driver
// pulls from.
type StreamReader struct {
	mu     sync.Mutex
	source RenderSource
	buf    []float32
}

func NewStreamReader(source RenderSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		u := math.Float32bits(r.buf[i])
		binary.LittleEndian.PutUint32(p[i*4:], u)
	}
	n := frames * 8
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return n, io.EOF
	}
	return n, nil
}

func (r *StreamReader) Close() error { return nil }

// Output streams a RenderSource to the audio device.
type Output struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// checkContextRate rejects a rate the process-wide context cannot serve.
func checkContextRate(have, want int) error {
	if have != want {
		return fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", have, want)
	}
	return nil
}

// sharedAudioContext returns the process-wide driver context. The driver
// fixes its rate at first use; the engine handles mid-session rate changes
// by regenerating timestamps, not by reopening the device.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if err := checkContextRate(audioSampleRate, sampleRate); err != nil {
		return nil, err
	}
	return audioContext, nil
}

func NewOutput(sampleRate int, source RenderSource) (*Output, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	return &Output{player: pl, reader: reader}, nil
}

func (o *Output) Play()  { o.player.Play() }
func (o *Output) Pause() { o.player.Pause() }

func (o *Output) IsPlaying() bool { return o.player.IsPlaying() }

// Position returns the driver's output position: what the listener actually
// hears right now.
func (o *Output) Position() time.Duration { return o.player.Position() }

func (o *Output) Stop() error {
	o.player.Pause()
	o.player.Close()
	return o.reader.Close()
}
