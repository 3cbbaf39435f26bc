package artifact

import (
	"encoding/binary"
	"fmt"
	"io"
)

// writeWAV writes a canonical 44-byte WAV header followed by the PCM payload.
// The payload must be interleaved little-endian 16-bit samples.
func writeWAV(w io.Writer, pcm []byte, sampleRate, channels int) error {
	dataSize := len(pcm)
	fileSize := 36 + dataSize

	header := make([]byte, 44)

	// RIFF header
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(fileSize))
	copy(header[8:12], "WAVE")

	// fmt chunk
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)                              // fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)                               // PCM format
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))                // channels
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))              // sample rate
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*channels*2))   // byte rate
	binary.LittleEndian.PutUint16(header[32:34], uint16(channels*2))              // block align
	binary.LittleEndian.PutUint16(header[34:36], 16)                              // bits per sample

	// data chunk
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav payload: %w", err)
	}
	return nil
}
