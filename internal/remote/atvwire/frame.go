package atvwire

import (
	"bufio"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// Frames on both the pairing and remote channel are a varint length followed
// by a protobuf-encoded message.

const maxFrameSize = 1 << 20

func writeFrame(w io.Writer, payload []byte) error {
	buf := protowire.AppendVarint(nil, uint64(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	size, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame size %d exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func readVarint(r *bufio.Reader) (uint64, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		buf = append(buf, b)
		if b < 0x80 {
			break
		}
		if len(buf) > 10 {
			return 0, fmt.Errorf("malformed varint")
		}
	}
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return v, nil
}
