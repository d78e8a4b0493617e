package signal

import (
    "encoding/binary"
    "errors"
    "fmt"
)

// Fixed header layout (32 bytes), little-endian, followed by BodyLen bytes
// of codec-encoded body.
//
//  0 ..1   Magic   'F''L' (0x4c46)
//  2       Version u8
//  3       Type    u8
//  4 ..7   Flags   u32
//  8 ..15  ConnID  u64
//  16..23  Seq     u64
//  24..27  BodyLen u32
//  28..31  reserved
const (
    HeaderSize = 32
    magicWord  = uint16(0x4c46)
    Version    = uint8(1)
)

// FlagHandle marks a message that must arrive with a transport handle.
const FlagHandle uint32 = 1 << 0

var (
    ErrShortHeader = errors.New("signal: short header")
    ErrBadMagic    = errors.New("signal: bad magic")
)

// Header is the fixed part of every signal message.
type Header struct {
    Version uint8
    Type    Type
    Flags   uint32
    ConnID  uint64
    Seq     uint64
    BodyLen uint32
}

func (h *Header) MarshalBinary() ([]byte, error) {
    buf := make([]byte, HeaderSize)
    h.put(buf)
    return buf, nil
}

func (h *Header) put(buf []byte) {
    binary.LittleEndian.PutUint16(buf[0:2], magicWord)
    buf[2] = h.Version
    buf[3] = uint8(h.Type)
    binary.LittleEndian.PutUint32(buf[4:8], h.Flags)
    binary.LittleEndian.PutUint64(buf[8:16], h.ConnID)
    binary.LittleEndian.PutUint64(buf[16:24], h.Seq)
    binary.LittleEndian.PutUint32(buf[24:28], h.BodyLen)
}

func (h *Header) UnmarshalBinary(buf []byte) error {
    if len(buf) < HeaderSize { return ErrShortHeader }
    if binary.LittleEndian.Uint16(buf[0:2]) != magicWord { return ErrBadMagic }
    h.Version = buf[2]
    if h.Version != Version { return fmt.Errorf("signal: unsupported version %d", h.Version) }
    h.Type = Type(buf[3])
    h.Flags = binary.LittleEndian.Uint32(buf[4:8])
    h.ConnID = binary.LittleEndian.Uint64(buf[8:16])
    h.Seq = binary.LittleEndian.Uint64(buf[16:24])
    h.BodyLen = binary.LittleEndian.Uint32(buf[24:28])
    return nil
}
