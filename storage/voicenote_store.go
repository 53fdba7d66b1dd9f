package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var _ contract.IVoiceNoteStore = (*VoiceNoteStore)(nil)

const filePrefix = "history_audio_"

// VoiceNoteStore writes every received voice note to its own file.
// The payload is opaque, the MIME type is only sniffed to label the record.
type VoiceNoteStore struct {
	dir string
	log *slog.Logger
	now func() time.Time
}

func NewVoiceNoteStore(dir string, log *slog.Logger) (*VoiceNoteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create voice note directory %s: %w", dir, err)
	}
	return &VoiceNoteStore{dir: dir, log: log, now: time.Now}, nil
}

// Save persists payload as history_audio_<unixMillis>_<name>.
// The file is created exclusively, a name already taken gets a uuid infix.
func (s *VoiceNoteStore) Save(originalName string, payload []byte) (domain.StoredVoiceNote, error) {
	base := sanitizeFilename(originalName)
	millis := s.now().UnixMilli()

	name := fmt.Sprintf("%s%d_%s", filePrefix, millis, base)
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		name = fmt.Sprintf("%s%d_%s_%s", filePrefix, millis, uuid.NewString()[:8], base)
		s.log.Debug("Voice note name collision", "file", name)
		f, err = os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return domain.StoredVoiceNote{}, fmt.Errorf("failed to create voice note file: %w", err)
	}

	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return domain.StoredVoiceNote{}, fmt.Errorf("failed to write voice note %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return domain.StoredVoiceNote{}, fmt.Errorf("failed to close voice note %s: %w", name, err)
	}

	return domain.StoredVoiceNote{
		Filename: name,
		Path:     f.Name(),
		Size:     int64(len(payload)),
		MimeType: mimetype.Detect(payload).String(),
	}, nil
}

// sanitizeFilename keeps only the base name so a client can't escape the directory.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." || base == "" {
		return "voicenote"
	}
	return base
}
