package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	indexLockDirName   = ".index.lock"
	indexLockOwnerFile = "owner.json"

	lockRetryInterval = 25 * time.Millisecond
	// A lock older than this is assumed to belong to a crashed process.
	staleLockAge = 2 * time.Minute
)

// dirLock is a cross-process mutex implemented with an atomic mkdir.
type dirLock struct {
	lockDir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// acquireDirLock blocks until the lock in dir is obtained or ctx ends.
func acquireDirLock(ctx context.Context, dir string) (dirLock, error) {
	lockDir := filepath.Join(dir, indexLockDirName)
	for {
		err := os.Mkdir(lockDir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return dirLock{}, fmt.Errorf("acquire index lock in %s: %w", dir, err)
		}

		if info, statErr := os.Stat(lockDir); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			_ = os.RemoveAll(lockDir)
			continue
		}

		select {
		case <-ctx.Done():
			return dirLock{}, fmt.Errorf("index in %s is locked%s: %w", dir, describeOwner(lockDir), ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	data, _ := json.Marshal(owner)
	if err := os.WriteFile(filepath.Join(lockDir, indexLockOwnerFile), data, 0o644); err != nil {
		_ = os.RemoveAll(lockDir)
		return dirLock{}, fmt.Errorf("write index lock owner: %w", err)
	}

	return dirLock{lockDir: lockDir}, nil
}

func (l dirLock) release() error {
	if l.lockDir == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, indexLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release index lock %s: %w", l.lockDir, err)
	}
	return nil
}

func describeOwner(lockDir string) string {
	data, err := os.ReadFile(filepath.Join(lockDir, indexLockOwnerFile))
	if err != nil {
		return ""
	}
	var owner lockOwner
	if json.Unmarshal(data, &owner) != nil || owner.PID == 0 {
		return ""
	}
	return fmt.Sprintf(" (pid=%d created_at=%s host=%s)", owner.PID, owner.CreatedAt, owner.Hostname)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
