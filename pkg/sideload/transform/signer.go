package transform

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// Signer performs the actual code-signature rewrite on an extracted bundle.
// The signature format is outside this system's scope, so the operation is a
// black box: it either succeeds or fails as a whole and reports no
// sub-progress.
type Signer interface {
	Sign(ctx context.Context, req SignRequest) error
}

type SignRequest struct {
	BundlePath   string // Extracted application bundle to re-sign.
	IdentityPath string // PKCS#12 identity container on disk.
	ProfilePath  string // Provisioning profile on disk.
	Passphrase   string // Held in memory only for the duration of the call.
}

const signerPassphraseEnv = "SIDELOAD_SIGNING_PASSPHRASE"

// ExecSigner invokes an external signing tool. The passphrase is passed
// through the environment so it never shows up in the process argument list.
type ExecSigner struct {
	command string
}

func NewExecSigner(command string) *ExecSigner {
	return &ExecSigner{command: command}
}

func (s *ExecSigner) Sign(ctx context.Context, req SignRequest) error {
	cmd := exec.CommandContext(ctx, s.command,
		"--bundle", req.BundlePath,
		"--identity", req.IdentityPath,
		"--profile", req.ProfilePath,
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s", signerPassphraseEnv, req.Passphrase))

	output, err := cmd.CombinedOutput()
	if err != nil {
		logrus.Debugf("ExecSigner::Sign(): %s output: %s", s.command, string(output))
		return fmt.Errorf("signing operation rejected the bundle: %w", err)
	}
	return nil
}
