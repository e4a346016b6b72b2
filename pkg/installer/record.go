// pkg/installer/record.go

package installer

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/xdg"
	cerr "github.com/cockroachdb/errors"
)

// ToolStatus is the persisted outcome of the most recent check or install
// attempt for one tool.
type ToolStatus struct {
	Installed       bool   `json:"installed"`
	Checked         bool   `json:"checked"`
	TimestampMillis int64  `json:"timestamp_ms"`
	Path            string `json:"path,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Record is the process-wide installation record, persisted as JSON. It is
// created empty on first run, merged with any previously persisted copy at
// startup, rewritten after every check or install attempt, and never
// deleted automatically. The installer is its only writer.
type Record struct {
	mu   sync.Mutex
	path string

	Tools map[string]ToolStatus `json:"tools"`
}

// LoadRecord reads the record at path, returning an empty record when the
// file does not exist yet. Unknown fields in an old copy are dropped,
// missing fields default — an upgrade never clobbers state it understands.
func LoadRecord(path string) (*Record, error) {
	r := &Record{
		path:  path,
		Tools: make(map[string]ToolStatus),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, cerr.Wrap(err, "read installation record")
	}

	if err := json.Unmarshal(data, r); err != nil {
		// A corrupt record is not worth failing startup over; start
		// fresh and let the next save overwrite it.
		r.Tools = make(map[string]ToolStatus)
		return r, nil
	}
	if r.Tools == nil {
		r.Tools = make(map[string]ToolStatus)
	}
	return r, nil
}

// Get returns the status for a tool, zero value if never recorded.
func (r *Record) Get(tool string) ToolStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Tools[tool]
}

// Set updates a tool's status, stamping the current time, and persists.
func (r *Record) Set(tool string, status ToolStatus) error {
	r.mu.Lock()
	status.TimestampMillis = time.Now().UnixMilli()
	r.Tools[tool] = status
	r.mu.Unlock()
	return r.Save()
}

// Save rewrites the record file.
func (r *Record) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := xdg.EnsureDir(r.path); err != nil {
		return cerr.Wrap(err, "create record directory")
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return cerr.Wrap(err, "marshal installation record")
	}
	if err := os.WriteFile(r.path, data, xdg.FilePermStandard); err != nil {
		return cerr.Wrap(err, "write installation record")
	}
	return nil
}
