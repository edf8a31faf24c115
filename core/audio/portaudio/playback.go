// Package portaudio plays scheduled audio buffers on the default output
// device.
package portaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/jennalabs/voicecart/core/audio"
)

const defaultBufferSize = 1024

// Device writes linear16 buffers to a single mono output stream. Scheduled
// buffers each get their own goroutine that sleeps until its start time and
// then streams frames, so back-to-back schedules play gaplessly.
type Device struct {
	bufferSize int
	stream     *portaudio.Stream
	out        []int16

	// streamMu serializes frame writes; overlapping sources take turns at
	// buffer granularity.
	streamMu  sync.Mutex
	closeOnce sync.Once
}

func NewDevice() (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}

	out := make([]int16, defaultBufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, audio.DefaultSampleRate, defaultBufferSize, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	return &Device{
		bufferSize: defaultBufferSize,
		stream:     stream,
		out:        out,
	}, nil
}

// Schedule queues pcm to start at the given instant. onEnded fires only when
// the buffer plays out naturally, not when the source is stopped.
func (d *Device) Schedule(pcm []byte, info audio.EncodingInfo, at time.Time, onEnded func()) (audio.ActiveSource, error) {
	if info.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported playback format: %s", info.Format.Name())
	}
	if info.SampleRate != audio.DefaultSampleRate {
		return nil, fmt.Errorf("unsupported playback sample rate: %d", info.SampleRate)
	}

	s := &source{stop: make(chan struct{})}
	go d.play(s, pcm, at, onEnded)
	return s, nil
}

func (d *Device) play(s *source, pcm []byte, at time.Time, onEnded func()) {
	if wait := time.Until(at); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.stop:
			timer.Stop()
			return
		}
	}

	frameBytes := d.bufferSize * 2
	for offset := 0; offset < len(pcm); offset += frameBytes {
		select {
		case <-s.stop:
			return
		default:
		}

		chunk := pcm[offset:min(offset+frameBytes, len(pcm))]
		if len(chunk) < frameBytes {
			padded := make([]byte, frameBytes)
			copy(padded, chunk)
			chunk = padded
		}

		d.streamMu.Lock()
		_ = binary.Read(bytes.NewReader(chunk), binary.LittleEndian, d.out)
		if err := d.stream.Write(); err != nil {
			d.streamMu.Unlock()
			return
		}
		d.streamMu.Unlock()
	}

	select {
	case <-s.stop:
	default:
		if onEnded != nil {
			onEnded()
		}
	}
}

func (d *Device) Close() {
	d.closeOnce.Do(func() {
		d.streamMu.Lock()
		defer d.streamMu.Unlock()
		_ = d.stream.Stop()
		d.stream.Close()
		_ = portaudio.Terminate()
	})
}

func (d *Device) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

type source struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *source) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
