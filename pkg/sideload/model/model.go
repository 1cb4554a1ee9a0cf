package model

import "time"

// MatchResult is the outcome of verifying an identity container against a
// provisioning profile. WrongPassphrase and NoCertificate are first-class
// outcomes, not errors. Callers decide how to surface them.
type MatchResult string

const (
	MatchResultWrongPassphrase MatchResult = "wrong_passphrase"
	MatchResultNoCertificate   MatchResult = "no_matching_certificate"
	MatchResultMatched         MatchResult = "matched"
)

type JobState string

const (
	JobStateIdle        JobState = "idle"
	JobStateDownloading JobState = "downloading"
	JobStateSigning     JobState = "signing"
	JobStateInstalling  JobState = "installing"
	JobStateSucceeded   JobState = "succeeded"
	JobStateFailed      JobState = "failed"
	JobStateCancelled   JobState = "cancelled"
)

// Terminal reports whether the state is final for a job. Terminal states are
// irreversible.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

type JobEventType string

const (
	JobEventProgress JobEventType = "progress"
	JobEventStatus   JobEventType = "status"
	JobEventTerminal JobEventType = "terminal"
)

// JobEvent is the tagged union delivered on a job's event stream.
//
// Progress events carry the global fraction in [0,1] and the stage producing
// it. Status events carry a human readable message. Terminal events carry the
// final outcome and, for failed jobs, the underlying error message.
type JobEvent struct {
	Type     JobEventType `json:"type"`
	Stage    JobState     `json:"stage,omitempty"`
	Progress float64      `json:"progress,omitempty"`
	Message  string       `json:"message,omitempty"`
	Outcome  JobState     `json:"outcome,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// ProfileInfo is the metadata extracted from a provisioning profile without
// access to the private key.
type ProfileInfo struct {
	DisplayName             string     `json:"display_name,omitempty"`
	ExpiresAt               *time.Time `json:"expires_at,omitempty"`
	CertificateFingerprints []string   `json:"certificate_fingerprints,omitempty"`
}
