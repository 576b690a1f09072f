package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const currentFileName = "audit.log"

// FileConfig configures a FileRecorder.
type FileConfig struct {
	// Dir holds audit.log and its rotated siblings.
	Dir string
	// MaxSize is the size in bytes at which audit.log is rotated.
	MaxSize int64
	// MaxFiles is how many rotated files are kept.
	MaxFiles int
}

// DefaultFileConfig returns 100MB files, ten kept.
func DefaultFileConfig() FileConfig {
	return FileConfig{
		Dir:      "/var/log/tenantguard/audit",
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// FileRecorder appends events as JSON lines with size based rotation.
type FileRecorder struct {
	config FileConfig
	mu     sync.Mutex
	file   *os.File
	size   int64
	now    func() time.Time
}

// NewFileRecorder opens (or creates) Dir/audit.log.
func NewFileRecorder(config FileConfig) (*FileRecorder, error) {
	def := DefaultFileConfig()
	if config.Dir == "" {
		config.Dir = def.Dir
	}
	if config.MaxSize <= 0 {
		config.MaxSize = def.MaxSize
	}
	if config.MaxFiles <= 0 {
		config.MaxFiles = def.MaxFiles
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f := &FileRecorder{config: config, now: time.Now}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileRecorder) path() string {
	return filepath.Join(f.config.Dir, currentFileName)
}

func (f *FileRecorder) open() error {
	file, err := os.OpenFile(f.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat audit log file: %w", err)
	}
	f.file = file
	f.size = info.Size()
	return nil
}

// Record implements Recorder.
func (f *FileRecorder) Record(_ context.Context, event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return fmt.Errorf("audit log is closed")
	}
	if f.size > 0 && f.size+int64(len(line)) > f.config.MaxSize {
		if err := f.rotate(); err != nil {
			return err
		}
	}
	n, err := f.file.Write(line)
	f.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// rotate renames audit.log to audit-<timestamp>.log and reopens. Callers hold mu.
func (f *FileRecorder) rotate() error {
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log: %w", err)
	}
	f.file = nil

	stamp := f.now().UTC().Format("20060102T150405.000000000")
	rotated := filepath.Join(f.config.Dir, "audit-"+stamp+".log")
	if err := os.Rename(f.path(), rotated); err != nil {
		return fmt.Errorf("failed to rename audit log: %w", err)
	}
	if err := f.prune(); err != nil {
		return err
	}
	return f.open()
}

// prune keeps the newest MaxFiles rotated files. Timestamped names sort
// chronologically.
func (f *FileRecorder) prune() error {
	files, err := filepath.Glob(filepath.Join(f.config.Dir, "audit-*.log"))
	if err != nil {
		return fmt.Errorf("failed to list rotated audit logs: %w", err)
	}
	if len(files) <= f.config.MaxFiles {
		return nil
	}
	sort.Strings(files)
	for _, name := range files[:len(files)-f.config.MaxFiles] {
		if err := os.Remove(name); err != nil {
			return fmt.Errorf("failed to remove old audit log: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the current file.
func (f *FileRecorder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
