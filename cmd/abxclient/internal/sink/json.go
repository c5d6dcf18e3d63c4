package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/shubham-shewale/abx-client/pkg/models"
)

var _ Sink = (*JSONFile)(nil)

// JSONFile writes the batch as an indented JSON array.
type JSONFile struct {
	path   string
	logger *zap.Logger
}

func NewJSONFile(logger *zap.Logger, path string) *JSONFile {
	return &JSONFile{path: path, logger: logger}
}

func (j *JSONFile) Path() string { return j.path }

// ResolvePath anchors a relative path to baseDir. An empty baseDir means the
// directory of the running executable.
func ResolvePath(path, baseDir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	if baseDir == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("locate executable: %w", err)
		}
		baseDir = filepath.Dir(exe)
	}
	return filepath.Join(baseDir, path), nil
}

func (j *JSONFile) Write(ctx context.Context, packets []models.Packet) error {
	if packets == nil {
		packets = []models.Packet{}
	}
	data, err := json.MarshalIndent(packets, "", "  ")
	if err != nil {
		return fmt.Errorf("encode packets: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.path), ".abx-output-*")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.path); err != nil {
		return fmt.Errorf("move output into place: %w", err)
	}

	j.logger.Info("Output written", zap.String("path", j.path), zap.Int("packets", len(packets)))
	return nil
}

func (j *JSONFile) Close() error { return nil }
