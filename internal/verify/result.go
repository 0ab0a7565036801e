package verify

import "smtpverify/internal/smtp"

// Result is the public output of a single verify call.
type Result struct {
	Email            string
	Status           smtp.Status
	SMTPCode         int
	MXServer         string
	Attempts         int
	IsCatchAll       bool
	IsTemporaryError bool
	Reason           string
	TimeTakenMs      int64
}

// Observer is an optional hook a caller (cmd/verifyd) can attach to
// watch individual attempts for logging, without pulling any logging
// dependency into the core itself.
type Observer interface {
	OnAttempt(host string, attempt int, result Result)
}

// NopObserver implements Observer with no-ops.
type NopObserver struct{}

func (NopObserver) OnAttempt(string, int, Result) {}
