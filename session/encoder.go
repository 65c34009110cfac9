package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordFormatVersionV1 = 1

// lastRequestAt is always the trailing 8 bytes of the blob so the Touch Lua
// script can splice it without a full decode.

func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersionV1)

	if len(r.Principal) > 255 {
		return nil, errors.New("principal too long")
	}
	buf.WriteByte(byte(len(r.Principal)))
	buf.WriteString(r.Principal)

	buf.Write(r.Fingerprint[:])

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.LastRequestAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	r := &Record{}

	principalLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	principal := make([]byte, principalLen)
	if _, err := io.ReadFull(reader, principal); err != nil {
		return nil, err
	}
	r.Principal = string(principal)

	if _, err := io.ReadFull(reader, r.Fingerprint[:]); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.LastRequestAt); err != nil {
		return nil, err
	}

	return r, nil
}
