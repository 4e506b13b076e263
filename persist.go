package letschat

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// SelectionMirror is the best-effort local snapshot of the active chat id,
// so a restarted client can restore its selection. The snapshot is opaque
// to everything but the store, which discards it when the chat id is
// missing from the freshly loaded collection.
type SelectionMirror struct {
	path string
}

type mirrorState struct {
	ActiveChatID string `toml:"active_chat_id"`
}

// NewSelectionMirror creates a mirror backed by the given file path.
func NewSelectionMirror(path string) *SelectionMirror {
	return &SelectionMirror{path: path}
}

// DefaultMirrorPath returns ~/.letschat/state.toml, creating the directory
// if needed.
func DefaultMirrorPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".letschat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create state directory: %w", err)
	}
	return filepath.Join(dir, "state.toml"), nil
}

// Load reads the persisted active chat id. A missing file is not an error;
// it returns "".
func (m *SelectionMirror) Load() (string, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("cannot read state file: %w", err)
	}
	var st mirrorState
	if err := toml.Unmarshal(data, &st); err != nil {
		return "", fmt.Errorf("cannot parse state file: %w", err)
	}
	return st.ActiveChatID, nil
}

// Save persists the active chat id. Pass "" to record no selection.
func (m *SelectionMirror) Save(chatID string) error {
	data, err := toml.Marshal(mirrorState{ActiveChatID: chatID})
	if err != nil {
		return fmt.Errorf("cannot encode state: %w", err)
	}
	return atomicWriteFile(m.path, data, 0o600)
}

// Clear removes the snapshot entirely.
func (m *SelectionMirror) Clear() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot remove state file: %w", err)
	}
	return nil
}

// atomicWriteFile writes via a temp file in the same directory and renames
// it over the target, so the snapshot is never partially written.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cannot create state directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".tmp-state-")
	if err != nil {
		return fmt.Errorf("cannot create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("cannot write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cannot close temp file: %w", err)
	}
	if err := os.Chmod(tmp, perm); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cannot chmod temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cannot replace state file: %w", err)
	}
	return nil
}
