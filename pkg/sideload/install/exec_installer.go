package install

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// ExecInstaller drives installation through an external device tool (e.g.
// ideviceinstaller). The pairing/trust artifact is a lockdown pairing record
// on disk; its presence gates the pipeline.
type ExecInstaller struct {
	command           string
	pairingRecordPath string
}

type ExecInstallerOption func(i *ExecInstaller)

func WithPairingRecordPath(path string) ExecInstallerOption {
	return func(i *ExecInstaller) {
		i.pairingRecordPath = path
	}
}

func NewExecInstaller(command string, opts ...ExecInstallerOption) *ExecInstaller {
	installer := &ExecInstaller{command: command}
	for _, opt := range opts {
		opt(installer)
	}
	return installer
}

func (i *ExecInstaller) VerifyPairing(ctx context.Context) error {
	if i.pairingRecordPath == "" {
		return nil
	}
	if _, err := os.Stat(i.pairingRecordPath); err != nil {
		return fmt.Errorf("pairing record %s: %w", i.pairingRecordPath, err)
	}
	return nil
}

func (i *ExecInstaller) Install(ctx context.Context, packagePath string, onEvent func(InstallEvent)) error {
	if onEvent != nil {
		onEvent(InstallEvent{Fraction: 0, Status: "Pushing package to device"})
	}

	cmd := exec.CommandContext(ctx, i.command, packagePath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logrus.Debugf("ExecInstaller::Install(): %s output: %s", i.command, string(output))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("device installer failed: %w", err)
	}

	if onEvent != nil {
		onEvent(InstallEvent{Fraction: 1, Status: "Installed"})
	}
	return nil
}
