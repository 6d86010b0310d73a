package dbc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/justapithecus/canvass/types"
)

// Sentinel errors for save failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrTargetExists indicates the save target already exists; the save
	// action never overwrites.
	ErrTargetExists = errors.New("target file already exists")

	// ErrSerialize indicates the schema could not be serialized.
	ErrSerialize = errors.New("schema serialization failed")

	// ErrIO indicates a filesystem failure while creating or writing.
	ErrIO = errors.New("i/o failure")
)

// SaveError wraps an underlying error with save-path classification.
// It preserves the original error in the chain for inspection via errors.As.
type SaveError struct {
	// Kind is the sentinel error for classification (e.g. ErrTargetExists).
	Kind error
	// Op is the operation that failed (e.g. "create", "write").
	Op string
	// Path is the resolved target path.
	Path string
	// Err is the underlying error, if any.
	Err error
}

func (e *SaveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *SaveError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *SaveError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// ExpandPath resolves a user-given save path: a leading ~ expands to the
// home directory, $VAR and ${VAR} expand from the environment, and the
// result is made absolute.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	path = os.ExpandEnv(path)
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %q: %w", path, err)
	}
	return abs, nil
}

// Save writes the serialized message to the user-given path with
// create-exclusive semantics: parent directories are created as needed, but
// an existing target file fails the save without touching it.
func Save(m *types.Message, path string) error {
	resolved, err := ExpandPath(path)
	if err != nil {
		return &SaveError{Kind: ErrIO, Op: "resolve", Path: path, Err: err}
	}

	text, err := Dump(m)
	if err != nil {
		return &SaveError{Kind: ErrSerialize, Op: "dump", Path: resolved, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return &SaveError{Kind: ErrIO, Op: "mkdir", Path: resolved, Err: err}
	}

	f, err := os.OpenFile(resolved, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return &SaveError{Kind: ErrTargetExists, Op: "create", Path: resolved, Err: err}
		}
		return &SaveError{Kind: ErrIO, Op: "create", Path: resolved, Err: err}
	}

	_, writeErr := f.WriteString(text)
	closeErr := f.Close()
	if writeErr != nil {
		return &SaveError{Kind: ErrIO, Op: "write", Path: resolved, Err: writeErr}
	}
	if closeErr != nil {
		return &SaveError{Kind: ErrIO, Op: "close", Path: resolved, Err: closeErr}
	}
	return nil
}
