// Package remote fans detection trials out to worker processes over
// nanomsg pipeline sockets. The coordinator pushes one task frame per
// trial and pulls result frames back; workers are stateless and any
// number of them may attach to the same pair of sockets.
package remote

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/dd0wney/shulou/pkg/graph"
)

// ErrBadFrame is returned for frames that fail structural or checksum
// validation.
var ErrBadFrame = errors.New("malformed wire frame")

// Frame types on the wire.
const (
	frameTask   byte = 0x01
	frameResult byte = 0x02
	frameError  byte = 0x03
)

// maxFramePayload caps decompressed payload size so a corrupt length
// prefix cannot trigger a huge allocation.
const maxFramePayload = 1 << 28

// taskFrame carries one trial to a worker. The full edge list rides
// along so workers stay stateless.
type taskFrame struct {
	RunID     uuid.UUID
	Trial     uint32
	Seed      int64
	Canonical bool
	NodeCount uint32
	Edges     []graph.Edge
}

// resultFrame carries one finished trial back to the coordinator.
type resultFrame struct {
	RunID      uuid.UUID
	Trial      uint32
	Modularity float64
	Membership []int
}

// errorFrame reports a failed trial.
type errorFrame struct {
	RunID   uuid.UUID
	Trial   uint32
	Message string
}

// Frame layout: [type:1][length:4][snappy payload][crc32:4], with the
// checksum computed over the compressed payload, big-endian throughout.
// Same framing discipline as a compressed WAL entry.
func encodeFrame(frameType byte, payload []byte) []byte {
	compressed := snappy.Encode(nil, payload)

	buf := make([]byte, 0, 1+4+len(compressed)+4)
	buf = append(buf, frameType)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(compressed)))
	buf = append(buf, compressed...)
	buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(compressed))
	return buf
}

func decodeFrame(data []byte) (frameType byte, payload []byte, err error) {
	if len(data) < 9 {
		return 0, nil, fmt.Errorf("%w: %d bytes is below minimum frame size", ErrBadFrame, len(data))
	}

	frameType = data[0]
	length := binary.BigEndian.Uint32(data[1:5])
	if int(length) != len(data)-9 {
		return 0, nil, fmt.Errorf("%w: length prefix %d != body %d", ErrBadFrame, length, len(data)-9)
	}

	compressed := data[5 : 5+length]
	checksum := binary.BigEndian.Uint32(data[5+length:])
	if crc32.ChecksumIEEE(compressed) != checksum {
		return 0, nil, fmt.Errorf("%w: checksum mismatch", ErrBadFrame)
	}

	if n, err := snappy.DecodedLen(compressed); err != nil || n > maxFramePayload {
		return 0, nil, fmt.Errorf("%w: bad compressed payload", ErrBadFrame)
	}
	payload, err = snappy.Decode(nil, compressed)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return frameType, payload, nil
}

func (f *taskFrame) encode() []byte {
	var buf bytes.Buffer
	buf.Write(f.RunID[:])
	binary.Write(&buf, binary.BigEndian, f.Trial)
	binary.Write(&buf, binary.BigEndian, uint64(f.Seed))
	canonical := byte(0)
	if f.Canonical {
		canonical = 1
	}
	buf.WriteByte(canonical)
	binary.Write(&buf, binary.BigEndian, f.NodeCount)
	binary.Write(&buf, binary.BigEndian, uint32(len(f.Edges)))
	for _, e := range f.Edges {
		binary.Write(&buf, binary.BigEndian, uint32(e.From))
		binary.Write(&buf, binary.BigEndian, uint32(e.To))
	}
	return encodeFrame(frameTask, buf.Bytes())
}

func decodeTask(payload []byte) (taskFrame, error) {
	const header = 16 + 4 + 8 + 1 + 4 + 4
	if len(payload) < header {
		return taskFrame{}, fmt.Errorf("%w: short task payload", ErrBadFrame)
	}

	var f taskFrame
	copy(f.RunID[:], payload[:16])
	f.Trial = binary.BigEndian.Uint32(payload[16:20])
	f.Seed = int64(binary.BigEndian.Uint64(payload[20:28]))
	f.Canonical = payload[28] == 1
	f.NodeCount = binary.BigEndian.Uint32(payload[29:33])
	edgeCount := binary.BigEndian.Uint32(payload[33:37])

	if len(payload) != header+int(edgeCount)*8 {
		return taskFrame{}, fmt.Errorf("%w: task edge list truncated", ErrBadFrame)
	}

	f.Edges = make([]graph.Edge, edgeCount)
	off := header
	for i := range f.Edges {
		f.Edges[i] = graph.Edge{
			From: int(binary.BigEndian.Uint32(payload[off : off+4])),
			To:   int(binary.BigEndian.Uint32(payload[off+4 : off+8])),
		}
		off += 8
	}
	return f, nil
}

func (f *resultFrame) encode() []byte {
	var buf bytes.Buffer
	buf.Write(f.RunID[:])
	binary.Write(&buf, binary.BigEndian, f.Trial)
	binary.Write(&buf, binary.BigEndian, math.Float64bits(f.Modularity))
	binary.Write(&buf, binary.BigEndian, uint32(len(f.Membership)))
	for _, c := range f.Membership {
		binary.Write(&buf, binary.BigEndian, uint32(c))
	}
	return encodeFrame(frameResult, buf.Bytes())
}

func decodeResult(payload []byte) (resultFrame, error) {
	const header = 16 + 4 + 8 + 4
	if len(payload) < header {
		return resultFrame{}, fmt.Errorf("%w: short result payload", ErrBadFrame)
	}

	var f resultFrame
	copy(f.RunID[:], payload[:16])
	f.Trial = binary.BigEndian.Uint32(payload[16:20])
	f.Modularity = math.Float64frombits(binary.BigEndian.Uint64(payload[20:28]))
	n := binary.BigEndian.Uint32(payload[28:32])

	if len(payload) != header+int(n)*4 {
		return resultFrame{}, fmt.Errorf("%w: result membership truncated", ErrBadFrame)
	}

	f.Membership = make([]int, n)
	off := header
	for i := range f.Membership {
		f.Membership[i] = int(binary.BigEndian.Uint32(payload[off : off+4]))
		off += 4
	}
	return f, nil
}

func (f *errorFrame) encode() []byte {
	var buf bytes.Buffer
	buf.Write(f.RunID[:])
	binary.Write(&buf, binary.BigEndian, f.Trial)
	buf.WriteString(f.Message)
	return encodeFrame(frameError, buf.Bytes())
}

func decodeError(payload []byte) (errorFrame, error) {
	if len(payload) < 20 {
		return errorFrame{}, fmt.Errorf("%w: short error payload", ErrBadFrame)
	}

	var f errorFrame
	copy(f.RunID[:], payload[:16])
	f.Trial = binary.BigEndian.Uint32(payload[16:20])
	f.Message = string(payload[20:])
	return f, nil
}
