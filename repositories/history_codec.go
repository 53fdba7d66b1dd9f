package repositories

import (
	"chat-relay/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the persisted history record.
// Numbers are never reused, new fields get new numbers.
const (
	fieldID        protowire.Number = 1
	fieldKind      protowire.Number = 2
	fieldSender    protowire.Number = 3
	fieldTarget    protowire.Number = 4
	fieldContent   protowire.Number = 5
	fieldAudioFile protowire.Number = 6
	fieldMimeType  protowire.Number = 7
	fieldAt        protowire.Number = 8
)

func marshalRecord(r domain.HistoryRecord) []byte {
	var b []byte
	b = appendString(b, fieldID, r.ID.String())
	b = appendString(b, fieldKind, string(r.Kind))
	b = appendString(b, fieldSender, r.Sender)
	b = appendString(b, fieldTarget, r.Target)
	b = appendString(b, fieldContent, r.Content)
	b = appendString(b, fieldAudioFile, r.AudioFile)
	b = appendString(b, fieldMimeType, r.MimeType)
	b = protowire.AppendTag(b, fieldAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.At.UnixNano()))
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func unmarshalRecord(b []byte) (domain.HistoryRecord, error) {
	var r domain.HistoryRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return domain.HistoryRecord{}, fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num >= fieldID && num <= fieldMimeType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return domain.HistoryRecord{}, fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := setString(&r, num, v); err != nil {
				return domain.HistoryRecord{}, err
			}
		case typ == protowire.VarintType && num == fieldAt:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return domain.HistoryRecord{}, fmt.Errorf("invalid timestamp: %w", protowire.ParseError(n))
			}
			b = b[n:]
			r.At = time.Unix(0, int64(v)).UTC()
		default:
			// Unknown fields are skipped to stay readable by older binaries.
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return domain.HistoryRecord{}, fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

func setString(r *domain.HistoryRecord, num protowire.Number, v string) error {
	switch num {
	case fieldID:
		id, err := uuid.Parse(v)
		if err != nil {
			return fmt.Errorf("invalid record id %q: %w", v, err)
		}
		r.ID = id
	case fieldKind:
		r.Kind = domain.RecordKind(v)
	case fieldSender:
		r.Sender = v
	case fieldTarget:
		r.Target = v
	case fieldContent:
		r.Content = v
	case fieldAudioFile:
		r.AudioFile = v
	case fieldMimeType:
		r.MimeType = v
	}
	return nil
}
