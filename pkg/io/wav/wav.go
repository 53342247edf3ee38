// Package wav writes and reads the canonical 44-byte-header PCM WAV layout
// used for stored clips.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const HeaderSize = 44

var ErrNotWAV = errors.New("wav: not a pcm wav file")

// Format describes the PCM stream inside a WAV file.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Mono16 is 16-bit mono at the given rate.
func Mono16(rate int) Format {
	return Format{SampleRate: rate, Channels: 1, BitsPerSample: 16}
}

func (f Format) blockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// Encode prefixes pcm with a RIFF/WAVE header.
func Encode(pcm []byte, f Format) []byte {
	buffer := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(pcm)))

	dataSize := uint32(len(pcm))

	buffer.WriteString("RIFF")
	buffer.Write(uint32ToBytes(dataSize + 36))
	buffer.WriteString("WAVE")
	buffer.WriteString("fmt ")
	buffer.Write(uint32ToBytes(16))                                    // fmt chunk size
	buffer.Write(uint16ToBytes(1))                                     // PCM
	buffer.Write(uint16ToBytes(uint16(f.Channels)))                    // channels
	buffer.Write(uint32ToBytes(uint32(f.SampleRate)))                  // sample rate
	buffer.Write(uint32ToBytes(uint32(f.SampleRate * f.blockAlign()))) // byte rate
	buffer.Write(uint16ToBytes(uint16(f.blockAlign())))                // block align
	buffer.Write(uint16ToBytes(uint16(f.BitsPerSample)))               // bits per sample
	buffer.WriteString("data")
	buffer.Write(uint32ToBytes(dataSize))

	buffer.Write(pcm)
	return buffer.Bytes()
}

// Decode returns the PCM payload and format of a PCM WAV file. Chunks other
// than "fmt " and "data" are skipped.
func Decode(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}

	var (
		f       Format
		haveFmt bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			if id == "data" {
				// tolerate a truncated final chunk
				size = len(data) - body
			} else {
				return nil, Format{}, fmt.Errorf("%w: chunk %q overruns file", ErrNotWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 || binary.LittleEndian.Uint16(data[body:]) != 1 {
				return nil, Format{}, fmt.Errorf("%w: unsupported fmt chunk", ErrNotWAV)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, Format{}, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			return data[body : body+size], f, nil
		}

		off = body + size + size%2
	}
	return nil, Format{}, fmt.Errorf("%w: no data chunk", ErrNotWAV)
}

func uint32ToBytes(val uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, val)
	return b
}

func uint16ToBytes(val uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, val)
	return b
}
