package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"ragchat/internal/chatlog"
	"ragchat/internal/domain"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// FileBackend stores each transcript as <dir>/<id>.json.
type FileBackend struct {
	dir    string
	logger *slog.Logger
}

func NewFileBackend(dir string, logger *slog.Logger) (*FileBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileBackend{dir: dir, logger: logger}, nil
}

func (f *FileBackend) path(id string) (string, error) {
	if !validID.MatchString(id) {
		return "", fmt.Errorf("%w: invalid session id %q", domain.ErrNotFound, id)
	}
	return filepath.Join(f.dir, id+".json"), nil
}

func (f *FileBackend) Save(_ context.Context, t Transcript) error {
	path, err := f.path(t.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", t.ID, err)
	}
	tmp, err := os.CreateTemp(f.dir, "."+t.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("save session %s: %w", t.ID, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save session %s: %w", t.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save session %s: %w", t.ID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save session %s: %w", t.ID, err)
	}
	return nil
}

func (f *FileBackend) Load(_ context.Context, id string) (Transcript, error) {
	path, err := f.path(id)
	if err != nil {
		return Transcript{}, err
	}
	return f.read(id, path)
}

func (f *FileBackend) read(id, path string) (Transcript, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Transcript{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return Transcript{}, fmt.Errorf("read session %s: %w", id, err)
	}
	t, err := decodeTranscript(data)
	if err != nil {
		return Transcript{}, fmt.Errorf("%w: %s is corrupt: %v", domain.ErrNotFound, id, err)
	}
	t.ID = id
	if t.UpdatedAt.IsZero() {
		if st, err := os.Stat(path); err == nil {
			t.UpdatedAt = st.ModTime()
		}
	}
	if t.CreatedAt.IsZero() {
		if ts, ok := IDTime(id); ok {
			t.CreatedAt = ts
		} else {
			t.CreatedAt = t.UpdatedAt
		}
	}
	return t, nil
}

// decodeTranscript accepts both the transcript object and a bare message
// array, which is how older history files were written.
func decodeTranscript(data []byte) (Transcript, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var msgs []chatlog.Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return Transcript{}, err
		}
		return Transcript{Messages: msgs}, nil
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return Transcript{}, err
	}
	return t, nil
}

func (f *FileBackend) Delete(_ context.Context, id string) error {
	path, err := f.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (f *FileBackend) List(context.Context) ([]Info, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if !validID.MatchString(id) {
			continue
		}
		t, err := f.read(id, filepath.Join(f.dir, name))
		if err != nil {
			f.logger.Warn("skipping unreadable session", "id", id, "error", err)
			continue
		}
		out = append(out, infoOf(t))
	}
	return out, nil
}
