package packet

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes p to its on-the-wire byte representation: a type byte
// discriminator followed by a type-specific payload. The concrete layout is
// internal to this package; callers only ever see Packet values.
func Encode(p Packet) []byte {
	var buf []byte
	switch v := p.(type) {
	case Book:
		buf = appendHeader(nil, TypeBook, v.ClientID, v.PacketID)
		buf = appendString(buf, v.Title)
		buf = appendString(buf, v.Author)
	case Review:
		buf = appendHeader(nil, TypeReview, v.ClientID, v.PacketID)
		buf = appendString(buf, v.Title)
		buf = appendFloat32(buf, v.Score)
		buf = appendString(buf, v.Text)
	case EnrichedReview:
		buf = appendHeader(nil, TypeEnrichedReview, v.ClientID, v.PacketID)
		buf = appendString(buf, v.Title)
		buf = appendFloat32(buf, v.Score)
		buf = appendString(buf, v.Text)
		buf = appendString(buf, v.Author)
	case EOF:
		buf = appendHeader(nil, TypeEOF, v.ClientID, v.PacketID)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.AckInstances)))
		for _, id := range v.AckInstances {
			buf = binary.BigEndian.AppendUint32(buf, id)
		}
	default:
		panic(fmt.Sprintf("packet: unencodable type %T", p))
	}
	return buf
}

// Decode consumes one broker message body and returns its tagged record.
// This is the registry-based decoder called for by spec §6 and §9: dispatch
// is an exhaustive switch over the leading type byte.
func Decode(body []byte) (Packet, error) {
	if len(body) < 1+8+8 {
		return nil, fmt.Errorf("packet: short message (%d bytes)", len(body))
	}
	var t = Type(body[0])
	var clientID = binary.BigEndian.Uint64(body[1:9])
	var packetID = binary.BigEndian.Uint64(body[9:17])
	var rest = body[17:]

	switch t {
	case TypeBook:
		title, rest, err := readString(rest)
		if err != nil {
			return nil, err
		}
		author, _, err := readString(rest)
		if err != nil {
			return nil, err
		}
		return Book{ClientID: clientID, PacketID: packetID, Title: title, Author: author}, nil

	case TypeReview:
		title, rest, err := readString(rest)
		if err != nil {
			return nil, err
		}
		score, rest, err := readFloat32(rest)
		if err != nil {
			return nil, err
		}
		text, _, err := readString(rest)
		if err != nil {
			return nil, err
		}
		return Review{ClientID: clientID, PacketID: packetID, Title: title, Score: score, Text: text}, nil

	case TypeEnrichedReview:
		title, rest, err := readString(rest)
		if err != nil {
			return nil, err
		}
		score, rest, err := readFloat32(rest)
		if err != nil {
			return nil, err
		}
		text, rest, err := readString(rest)
		if err != nil {
			return nil, err
		}
		author, _, err := readString(rest)
		if err != nil {
			return nil, err
		}
		return EnrichedReview{ClientID: clientID, PacketID: packetID, Title: title, Score: score, Text: text, Author: author}, nil

	case TypeEOF:
		if len(rest) < 4 {
			return nil, fmt.Errorf("packet: truncated EOF ack_instances")
		}
		var n = binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint64(len(rest)) < uint64(n)*4 {
			return nil, fmt.Errorf("packet: truncated EOF ack_instances body")
		}
		var acks []uint32
		if n > 0 {
			acks = make([]uint32, n)
		}
		for i := range acks {
			acks[i] = binary.BigEndian.Uint32(rest[i*4 : i*4+4])
		}
		return EOF{ClientID: clientID, PacketID: packetID, AckInstances: acks}, nil

	default:
		return nil, fmt.Errorf("packet: unknown type byte %d", body[0])
	}
}

func appendHeader(buf []byte, t Type, clientID, packetID uint64) []byte {
	buf = append(buf, byte(t))
	buf = binary.BigEndian.AppendUint64(buf, clientID)
	buf = binary.BigEndian.AppendUint64(buf, packetID)
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendFloat32(buf []byte, f float32) []byte {
	return binary.BigEndian.AppendUint32(buf, math.Float32bits(f))
}

func readString(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, fmt.Errorf("packet: truncated string length")
	}
	var n = binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return "", nil, fmt.Errorf("packet: truncated string body")
	}
	return string(b[:n]), b[n:], nil
}

func readFloat32(b []byte) (float32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("packet: truncated float")
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b[:4])), b[4:], nil
}
