// Package install defines the boundary to the on-device installation
// collaborator. The wire protocol to the device is outside this system's
// scope; deployments plug in their own implementation.
package install

import "context"

// InstallEvent is one step of an on-device installation.
type InstallEvent struct {
	Fraction float64 // Monotone fraction in [0,1].
	Status   string  // Human readable status.
}

type Installer interface {
	// VerifyPairing confirms the device pairing/trust artifact is present.
	// The pipeline refuses to start a job without it.
	VerifyPairing(ctx context.Context) error

	// Install pushes the signed package to the device, reporting progress
	// through onEvent. A nil return is the terminal success; a non-nil return
	// is the terminal failure. Cancellation goes through ctx.
	Install(ctx context.Context, packagePath string, onEvent func(InstallEvent)) error
}
