// Package protocol implements the binary command wire protocol: frame
// parsing, command decoding, and response framing. It knows nothing about
// the controller, databases, or Bloom filters it addresses by id — that
// wiring lives in package ctl, which dispatches the Cmd values this package
// produces.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameHeaderLen is the 4-byte cmd_type plus 4-byte little-endian
// value_len prefix every command frame carries.
const frameHeaderLen = 8

// minFrameLen is the shortest buffer ParseFrame accepts: the header plus at
// least one more byte. A bare 8-byte header is rejected.
const minFrameLen = frameHeaderLen + 1

// Frame is one decoded command frame off the wire: its 4-byte type field
// (family, op, two reserved bytes) and its value payload.
type Frame struct {
	CmdType [4]byte
	Val     []byte
}

// ParseFrame parses one CmdTLV frame from the front of buf.
func ParseFrame(buf []byte) (Frame, error) {
	if len(buf) < minFrameLen {
		return Frame{}, fmt.Errorf("protocol: parse frame: %w", io.ErrUnexpectedEOF)
	}

	var cmdType [4]byte
	copy(cmdType[:], buf[0:4])

	length := binary.LittleEndian.Uint32(buf[4:8])
	end := frameHeaderLen + uint64(length)
	if uint64(len(buf)) < end {
		return Frame{}, fmt.Errorf("protocol: parse frame: %w", io.ErrUnexpectedEOF)
	}

	return Frame{CmdType: cmdType, Val: buf[frameHeaderLen:end]}, nil
}

// Family returns the frame's command family byte (byte 0 of CmdType).
func (f Frame) Family() byte {
	return f.CmdType[0]
}

// Op returns the frame's operation byte (byte 1 of CmdType).
func (f Frame) Op() byte {
	return f.CmdType[1]
}
