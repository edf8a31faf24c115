package audio

import (
	"encoding/binary"
	"fmt"
)

// The wire format for synthesized speech is a self-describing WAV container:
// a 44-byte RIFF header followed by raw samples, so the receiving side needs
// no side channel to learn the sample rate or sample width.

const wavHeaderSize = 44

// EncodeWAV wraps raw PCM samples in a RIFF/WAVE header for the given
// encoding. Only linear16 payloads are supported.
func EncodeWAV(pcm []byte, info EncodingInfo) ([]byte, error) {
	if info.Format != EncodingLinear16 {
		return nil, fmt.Errorf("unsupported encoding for wav container: %s", info.Format.Name())
	}

	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	byteRate := info.SampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], numChannels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(info.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)

	return out, nil
}

// DecodeWAV parses a WAV container produced by [EncodeWAV] (or any
// single-chunk PCM WAV file) back into its encoding and raw samples.
func DecodeWAV(data []byte) (EncodingInfo, []byte, error) {
	if len(data) < wavHeaderSize {
		return EncodingInfo{}, nil, fmt.Errorf("wav payload too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return EncodingInfo{}, nil, fmt.Errorf("not a RIFF/WAVE payload")
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return EncodingInfo{}, nil, fmt.Errorf("unsupported wav audio format: %d", format)
	}
	if channels := binary.LittleEndian.Uint16(data[22:24]); channels != 1 {
		return EncodingInfo{}, nil, fmt.Errorf("unsupported channel count: %d", channels)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		return EncodingInfo{}, nil, fmt.Errorf("unsupported sample width: %d bits", bits)
	}

	info := EncodingInfo{
		SampleRate: int(binary.LittleEndian.Uint32(data[24:28])),
		Format:     EncodingLinear16,
	}

	dataLen := binary.LittleEndian.Uint32(data[40:44])
	pcm := data[wavHeaderSize:]
	if int(dataLen) < len(pcm) {
		pcm = pcm[:dataLen]
	}

	return info, pcm, nil
}
