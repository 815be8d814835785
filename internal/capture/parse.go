// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package capture decodes packet captures returned by a traffic generator
// and asserts on the raw bytes of the captured frames.
//
// Frames are treated as opaque byte slices. Assertions name a byte offset
// and the exact bytes expected there, so new encapsulations only need a new
// offset table (see Stack) rather than a new decoder.
package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ErrMalformedCapture is returned when capture bytes violate the pcap or
// pcapng container format.
var ErrMalformedCapture = errors.New("malformed capture")

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

const (
	pcapFileHeaderLen   = 24
	pcapRecordHeaderLen = 16
	pcapngByteOrderLE   = 0x1a2b3c4d
	pcapngMinBlockLen   = 12
)

// Frame is one captured link-layer frame.
type Frame struct {
	// Sequence is the zero-based position of the frame in the capture file.
	Sequence int
	// Data holds the captured bytes. It must not be modified.
	Data           []byte
	Timestamp      time.Time
	CapturedLength int
	OriginalLength int
	LinkType       layers.LinkType
}

// Len returns the number of captured bytes.
func (f Frame) Len() int { return len(f.Data) }

// Field returns the n bytes at offset, or false if the range is not inside
// the frame.
func (f Frame) Field(offset, n int) ([]byte, bool) {
	if offset < 0 || n < 0 || offset+n > len(f.Data) {
		return nil, false
	}
	return f.Data[offset : offset+n], true
}

// Decode runs the gopacket decoders over the frame.
func (f Frame) Decode() gopacket.Packet {
	var dec gopacket.Decoder = layers.LayerTypeEthernet
	if f.LinkType != 0 {
		dec = f.LinkType
	}
	return gopacket.NewPacket(f.Data, dec, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
}

// Summary returns a one-line description of the frame, e.g.
// "#3 128B Ethernet/IPv4/UDP/VXLAN/Ethernet/IPv6/TCP/Payload".
func (f Frame) Summary() string {
	var names []string
	for _, l := range f.Decode().Layers() {
		names = append(names, l.LayerType().String())
	}
	return fmt.Sprintf("#%d %dB %s", f.Sequence, len(f.Data), strings.Join(names, "/"))
}

// Capture is the ordered set of frames of one capture file.
type Capture struct {
	LinkType layers.LinkType
	Frames   []Frame
}

// Len returns the number of frames.
func (c *Capture) Len() int { return len(c.Frames) }

// Frame returns the frame with the given sequence number.
func (c *Capture) Frame(seq int) (Frame, bool) {
	if seq < 0 || seq >= len(c.Frames) {
		return Frame{}, false
	}
	return c.Frames[seq], true
}

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Parse decodes a pcap or pcapng byte stream. Frames are returned in file
// order, unfiltered. A valid capture without frames yields an empty Capture.
func Parse(raw []byte) (*Capture, error) {
	var (
		src packetSource
		err error
	)
	if bytes.HasPrefix(raw, pcapngMagic) {
		src, err = pcapgo.NewNgReader(bytes.NewReader(raw), pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(bytes.NewReader(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: file header: %v", ErrMalformedCapture, err)
	}
	if bytes.HasPrefix(raw, pcapngMagic) {
		err = checkNgFraming(raw)
	} else {
		err = checkFraming(raw)
	}
	if err != nil {
		return nil, err
	}

	c := &Capture{LinkType: src.LinkType(), Frames: []Frame{}}
	for {
		data, ci, err := src.ReadPacketData()
		if err == io.EOF {
			return c, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %v", ErrMalformedCapture, len(c.Frames), err)
		}
		c.Frames = append(c.Frames, Frame{
			Sequence:       len(c.Frames),
			Data:           bytes.Clone(data),
			Timestamp:      ci.Timestamp,
			CapturedLength: ci.CaptureLength,
			OriginalLength: ci.Length,
			LinkType:       c.LinkType,
		})
	}
}

// checkFraming walks the record headers of a classic pcap file and fails if
// a declared record length runs past the end of raw.
func checkFraming(raw []byte) error {
	var order binary.ByteOrder = binary.BigEndian
	switch binary.LittleEndian.Uint32(raw) {
	case 0xa1b2c3d4, 0xa1b23c4d:
		order = binary.LittleEndian
	}
	off := pcapFileHeaderLen
	for n := 0; off < len(raw); n++ {
		if len(raw)-off < pcapRecordHeaderLen {
			return fmt.Errorf("%w: frame %d: record header has %d of %d bytes", ErrMalformedCapture, n, len(raw)-off, pcapRecordHeaderLen)
		}
		incl := int(order.Uint32(raw[off+8:]))
		off += pcapRecordHeaderLen
		if incl > len(raw)-off {
			return fmt.Errorf("%w: frame %d: declared length %d exceeds remaining %d bytes", ErrMalformedCapture, n, incl, len(raw)-off)
		}
		off += incl
	}
	return nil
}

// checkNgFraming walks the blocks of a pcapng file and fails if a block's
// total length is invalid or runs past the end of raw.
func checkNgFraming(raw []byte) error {
	var order binary.ByteOrder = binary.LittleEndian
	for off, n := 0, 0; off < len(raw); n++ {
		if len(raw)-off < pcapngMinBlockLen {
			return fmt.Errorf("%w: block %d: header has %d of %d bytes", ErrMalformedCapture, n, len(raw)-off, pcapngMinBlockLen)
		}
		if bytes.Equal(raw[off:off+4], pcapngMagic) {
			order = binary.BigEndian
			if binary.LittleEndian.Uint32(raw[off+8:]) == pcapngByteOrderLE {
				order = binary.LittleEndian
			}
		}
		total := int(order.Uint32(raw[off+4:]))
		if total < pcapngMinBlockLen || total%4 != 0 {
			return fmt.Errorf("%w: block %d: invalid total length %d", ErrMalformedCapture, n, total)
		}
		if total > len(raw)-off {
			return fmt.Errorf("%w: block %d: declared length %d exceeds remaining %d bytes", ErrMalformedCapture, n, total, len(raw)-off)
		}
		if trailer := int(order.Uint32(raw[off+total-4:])); trailer != total {
			return fmt.Errorf("%w: block %d: trailing length %d, want %d", ErrMalformedCapture, n, trailer, total)
		}
		off += total
	}
	return nil
}

// ParseFile reads and parses a capture file.
func ParseFile(path string) (*Capture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Encode writes frames as a classic pcap file with an Ethernet link type.
// Frame i is stamped at+i microseconds.
func Encode(frames [][]byte, at time.Time) ([]byte, error) {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		return nil, err
	}
	for i, data := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     at.Add(time.Duration(i) * time.Microsecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			return nil, fmt.Errorf("writing frame %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// EncodeNg is the pcapng counterpart of Encode.
func EncodeNg(frames [][]byte, at time.Time) ([]byte, error) {
	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeEthernet)
	if err != nil {
		return nil, err
	}
	for i, data := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     at.Add(time.Duration(i) * time.Microsecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			return nil, fmt.Errorf("writing frame %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
