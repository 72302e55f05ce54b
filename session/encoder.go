package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	formatVersionCurrent = 1

	flagMFAVerified   = 1 << 0
	flagSetupPending  = 1 << 1
	flagImpersonating = 1 << 2
)

var ErrCorruptSession = errors.New("session: corrupt record")

// Encode renders s in the binary storage layout. The session ID is the Redis
// key and is not part of the value.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(formatVersionCurrent)

	var flags byte
	if s.MFAVerified {
		flags |= flagMFAVerified
	}
	if s.SetupPending {
		flags |= flagSetupPending
	}
	if s.Impersonation != nil {
		flags |= flagImpersonating
	}
	buf.WriteByte(flags)

	if err := writeString(&buf, s.AccountID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, s.Role); err != nil {
		return nil, err
	}
	if s.Impersonation != nil {
		for _, v := range []string{s.Impersonation.AdminID, s.Impersonation.TargetID, s.Impersonation.TargetRole} {
			if err := writeString(&buf, v); err != nil {
				return nil, err
			}
		}
		_ = binary.Write(&buf, binary.BigEndian, s.Impersonation.StartedAt)
	}
	_ = binary.Write(&buf, binary.BigEndian, s.CreatedAt)
	_ = binary.Write(&buf, binary.BigEndian, s.ExpiresAt)

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil || version != formatVersionCurrent {
		return nil, ErrCorruptSession
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorruptSession
	}

	s := &Session{
		MFAVerified:  flags&flagMFAVerified != 0,
		SetupPending: flags&flagSetupPending != 0,
	}
	if s.AccountID, err = readString(r); err != nil {
		return nil, err
	}
	if s.Role, err = readString(r); err != nil {
		return nil, err
	}
	if flags&flagImpersonating != 0 {
		imp := &Impersonation{}
		if imp.AdminID, err = readString(r); err != nil {
			return nil, err
		}
		if imp.TargetID, err = readString(r); err != nil {
			return nil, err
		}
		if imp.TargetRole, err = readString(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &imp.StartedAt); err != nil {
			return nil, ErrCorruptSession
		}
		s.Impersonation = imp
	}
	if err := binary.Read(r, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, ErrCorruptSession
	}
	if err := binary.Read(r, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, ErrCorruptSession
	}
	if r.Len() != 0 {
		return nil, ErrCorruptSession
	}
	return s, nil
}

func writeString(buf *bytes.Buffer, v string) error {
	if len(v) > 255 {
		return errors.New("session: field too long")
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", ErrCorruptSession
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", ErrCorruptSession
	}
	return string(b), nil
}
