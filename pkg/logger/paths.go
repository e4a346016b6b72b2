// pkg/logger/paths.go

package logger

import (
	"os"
	"path/filepath"

	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Candidate log locations, most preferred first. The state dir is tried
// before /var/log because attest normally runs as an unprivileged user.
func candidateLogPaths() []string {
	var paths []string
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		paths = append(paths, filepath.Join(state, "attest", "attest.log"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".local", "state", "attest", "attest.log"),
			filepath.Join(home, ".attest", "attest.log"),
		)
	}
	paths = append(paths, "/var/log/attest/attest.log")
	return paths
}

// FindWritableLogPath returns the first candidate path whose directory can be
// created and whose file can be opened for appending.
func FindWritableLogPath() (string, error) {
	for _, path := range candidateLogPaths() {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			continue
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			continue
		}
		f.Close()
		return path, nil
	}
	return "", cerr.New("no writable log path available")
}

// GetLogFileWriter opens the log file for appending and wraps it for zap.
func GetLogFileWriter(path string) (zapcore.WriteSyncer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, cerr.Wrap(err, "open log file")
	}
	return zapcore.AddSync(f), nil
}
