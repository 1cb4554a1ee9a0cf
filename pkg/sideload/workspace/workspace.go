// Package workspace manages the scratch directory tree owned by a single
// pipeline job.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/prostore-ios/sideloader/pkg/util"
	"github.com/sirupsen/logrus"
)

const (
	inputsDirName = "inputs"
	workDirName   = "work"
)

// Workspace is a uniquely named scratch directory tree with inputs/ and work/
// subtrees. A workspace is exclusively owned by one job and never shared.
type Workspace struct {
	root string
}

// New creates a workspace under baseDir. An empty baseDir means the system
// temporary directory.
func New(baseDir string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	root := filepath.Join(baseDir, fmt.Sprintf("sideload-%s", util.NewUUID()))
	for _, dir := range []string{root, filepath.Join(root, inputsDirName), filepath.Join(root, workDirName)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("workspace.New(): fail to MkdirAll(%s): %w", dir, err)
		}
	}

	return &Workspace{root: root}, nil
}

func (w *Workspace) Root() string {
	return w.root
}

// InputsDir holds the files a job received from outside (downloaded archive,
// identity, profile).
func (w *Workspace) InputsDir() string {
	return filepath.Join(w.root, inputsDirName)
}

// WorkDir holds intermediate files produced while transforming the package.
func (w *Workspace) WorkDir() string {
	return filepath.Join(w.root, workDirName)
}

// Remove deletes the workspace tree. Removal is attempted as a whole first;
// if that keeps failing (e.g. a transiently locked file) every entry is
// removed individually and the empty root is retried. Errors are logged and
// never returned: cleanup must not block the owner from starting a new job.
func (w *Workspace) Remove() {
	err := retry.Do(
		func() error { return os.RemoveAll(w.root) },
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return
	}
	logrus.Warnf("Workspace::Remove(): fail to RemoveAll(%s): %v. Falling back to per-entry removal", w.root, err)

	dirs := make([]string, 0, 16)
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		if err := os.Remove(path); err != nil {
			logrus.Warnf("Workspace::Remove(): fail to Remove(%s): %v", path, err)
		}
		return nil
	})
	// Deepest directories first.
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Remove(dirs[i]); err != nil {
			logrus.Warnf("Workspace::Remove(): fail to Remove(%s): %v", dirs[i], err)
		}
	}

	if _, err := os.Stat(w.root); err == nil {
		logrus.Warnf("Workspace::Remove(): workspace %s left behind", w.root)
	}
}
