package audio

import "time"

// OutputDevice plays decoded buffers at scheduled instants on the output
// clock. Implementations run each buffer to completion unless the returned
// source is stopped first.
type OutputDevice interface {
	// Schedule queues pcm to start playing at the given time. onEnded fires
	// once when the buffer finishes naturally; it does not fire after Stop.
	Schedule(pcm []byte, info EncodingInfo, at time.Time, onEnded func()) (ActiveSource, error)
}

// ActiveSource is one buffer that is scheduled or playing.
type ActiveSource interface {
	// Stop halts playback immediately. Safe to call more than once.
	Stop()
}
