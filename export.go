package dawcore

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
)

const exportChunkFrames = 512

// RenderOffline bounces the project through the same scheduler, delay
// compensation, and render path as live playback, so the export matches
// what monitoring produced. Renders stereo interleaved float32 starting at
// fromBeat for the given duration. Fails while the live audio output is
// open; the render sink is single-consumer.
func (e *Engine) RenderOffline(fromBeat, seconds float64) ([]float32, error) {
	if seconds <= 0 {
		return nil, errors.New("dawcore: render duration must be positive")
	}
	e.mu.Lock()
	live := e.output != nil
	e.mu.Unlock()
	if live {
		return nil, errors.New("dawcore: cannot render offline while the audio output is open")
	}
	if err := e.Jump(fromBeat); err != nil {
		return nil, err
	}
	if err := e.Play(); err != nil {
		return nil, err
	}
	defer e.Stop()

	rate := e.clock.SampleRate()
	frames := int(float64(rate) * seconds)
	out := make([]float32, 0, frames*2)
	buf := make([]float32, exportChunkFrames*2)
	for rendered := 0; rendered < frames; {
		n := exportChunkFrames
		if rest := frames - rendered; rest < n {
			n = rest
		}
		// Scheduling is pumped between chunks exactly as the live control
		// loop does between device callbacks.
		e.Tick()
		e.sink.Process(buf[:n*2])
		out = append(out, buf[:n*2]...)
		rendered += n
	}
	return out, nil
}

// ExportWAV renders offline and writes a float32 WAV file.
func (e *Engine) ExportWAV(path string, fromBeat, seconds float64) error {
	samples, err := e.RenderOffline(fromBeat, seconds)
	if err != nil {
		return err
	}
	return os.WriteFile(path, EncodeWAVFloat32LE(samples, e.clock.SampleRate(), 2), 0o644)
}

// EncodeWAVFloat32LE encodes interleaved float32 samples as a WAV
// (IEEE float, format 3) byte stream.
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
