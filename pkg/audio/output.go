package audio

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/kunquat/kunquat-go/pkg/player"
)

// Output manages audio output for a sequencer player, converting its
// stereo-interleaved float32 blocks into 16-bit PCM for a writer or stream.
type Output struct {
	Player     *player.Player
	SampleRate int
	BufferSize int // frames per Play() call

	mu      sync.Mutex
	running bool
}

// NewOutput creates a new audio output for p, rendering at audioRate with
// blockFrames frames per internal Play() call.
func NewOutput(p *player.Player, audioRate, blockFrames int) *Output {
	return &Output{
		Player:     p,
		SampleRate: audioRate,
		BufferSize: blockFrames,
	}
}

// AudioReader implements io.Reader, rendering blocks on demand and handing
// out their 16-bit stereo PCM bytes.
type AudioReader struct {
	output  *Output
	samples []float32
	pos     int
}

// NewAudioReader creates an io.Reader that renders audio from o.Player.
func (o *Output) NewAudioReader() *AudioReader {
	return &AudioReader{output: o}
}

// Read implements io.Reader, rendering a new block whenever the previous
// one has been fully drained, and stops (io.EOF) once the player reports
// it has no more frames to produce.
func (ar *AudioReader) Read(p []byte) (n int, err error) {
	if ar.pos >= len(ar.samples) {
		if ar.output.Player.HasStopped() {
			return 0, io.EOF
		}
		if err := ar.output.Player.Play(ar.output.BufferSize); err != nil {
			return 0, err
		}
		ar.samples = ar.output.Player.GetAudio()
		ar.pos = 0
		if len(ar.samples) == 0 {
			return 0, io.EOF
		}
	}

	for n = 0; n+2 <= len(p) && ar.pos < len(ar.samples); n += 2 {
		sample := ar.samples[ar.pos]
		ar.pos++
		binary.LittleEndian.PutUint16(p[n:], uint16(toPCM16(sample)))
	}

	return n, nil
}

func toPCM16(sample float32) int16 {
	if sample > 1.0 {
		sample = 1.0
	}
	if sample < -1.0 {
		sample = -1.0
	}
	return int16(sample * 32767)
}

// WAVWriter writes stereo 16-bit PCM audio in WAV format.
type WAVWriter struct {
	writer      io.Writer
	sampleRate  int
	channels    int
	dataWritten int
}

// NewWAVWriter creates a WAV writer.
func NewWAVWriter(w io.Writer, sampleRate, channels int) *WAVWriter {
	return &WAVWriter{
		writer:     w,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// WriteHeader writes the WAV header.
func (w *WAVWriter) WriteHeader(dataSize int) error {
	w.writer.Write([]byte("RIFF"))
	binary.Write(w.writer, binary.LittleEndian, uint32(dataSize+36))
	w.writer.Write([]byte("WAVE"))

	w.writer.Write([]byte("fmt "))
	binary.Write(w.writer, binary.LittleEndian, uint32(16))
	binary.Write(w.writer, binary.LittleEndian, uint16(1))
	binary.Write(w.writer, binary.LittleEndian, uint16(w.channels))
	binary.Write(w.writer, binary.LittleEndian, uint32(w.sampleRate))
	byteRate := w.sampleRate * w.channels * 2
	binary.Write(w.writer, binary.LittleEndian, uint32(byteRate))
	blockAlign := w.channels * 2
	binary.Write(w.writer, binary.LittleEndian, uint16(blockAlign))
	binary.Write(w.writer, binary.LittleEndian, uint16(16))

	w.writer.Write([]byte("data"))
	binary.Write(w.writer, binary.LittleEndian, uint32(dataSize))

	return nil
}

// WriteSamples writes interleaved float32 samples as 16-bit PCM.
func (w *WAVWriter) WriteSamples(samples []float32) error {
	for _, s := range samples {
		s16 := toPCM16(s)
		if err := binary.Write(w.writer, binary.LittleEndian, s16); err != nil {
			return err
		}
		w.dataWritten += 2
	}
	return nil
}

// ExportWAV renders p for durationSeconds and writes the result as a
// stereo 16-bit WAV file.
func ExportWAV(p *player.Player, audioRate int, writer io.Writer, durationSeconds float64) error {
	totalFrames := int(durationSeconds * float64(audioRate))
	dataSize := totalFrames * 2 * 2 // stereo, 16-bit

	wavWriter := NewWAVWriter(writer, audioRate, 2)
	if err := wavWriter.WriteHeader(dataSize); err != nil {
		return err
	}

	chunkFrames := 4096
	framesWritten := 0
	for framesWritten < totalFrames && !p.HasStopped() {
		remaining := totalFrames - framesWritten
		n := chunkFrames
		if remaining < n {
			n = remaining
		}
		if err := p.Play(n); err != nil {
			return err
		}
		samples := p.GetAudio()
		if err := wavWriter.WriteSamples(samples); err != nil {
			return err
		}
		framesWritten += len(samples) / 2
		if len(samples) == 0 {
			break
		}
	}

	return nil
}
