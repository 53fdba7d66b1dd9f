// Package domain contains core concepts of the relay.
// This file defines history records.
// Records are immutable once created.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type RecordKind string

const (
	KindText   RecordKind = "TEXT"
	KindAudio  RecordKind = "AUDIO"
	KindSystem RecordKind = "SYSTEM"
)

// HistoryRecord describes one delivered message or system event.
// Target is a username, a group name or AllTarget.
type HistoryRecord struct {
	ID        uuid.UUID
	Kind      RecordKind
	Sender    string
	Target    string
	Content   string
	AudioFile string
	MimeType  string
	At        time.Time
}

func NewTextRecord(sender, target, content string, at time.Time) HistoryRecord {
	return HistoryRecord{ID: uuid.New(), Kind: KindText, Sender: sender, Target: target, Content: content, At: at}
}

func NewSystemRecord(sender, content string, at time.Time) HistoryRecord {
	return HistoryRecord{ID: uuid.New(), Kind: KindSystem, Sender: sender, Target: AllTarget, Content: content, At: at}
}

func NewAudioRecord(sender, target string, note StoredVoiceNote, at time.Time) HistoryRecord {
	return HistoryRecord{
		ID:        uuid.New(),
		Kind:      KindAudio,
		Sender:    sender,
		Target:    target,
		Content:   "voice:" + note.Filename,
		AudioFile: note.Filename,
		MimeType:  note.MimeType,
		At:        at,
	}
}

// StoredVoiceNote is the outcome of persisting a voice note payload.
type StoredVoiceNote struct {
	Filename string
	Path     string
	Size     int64
	MimeType string
}
