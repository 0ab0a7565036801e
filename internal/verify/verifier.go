// Package verify implements the retry/backoff controller that drives
// MX resolution and one or more Session dialogues into a final
// Result.
package verify

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"smtpverify/internal/mx"
	"smtpverify/internal/smtp"
)

// Verifier orchestrates resolution, host iteration, and the retry
// policy across attempts for a single verify call. It holds no state
// shared across calls — every field is read-only configuration, so
// concurrent Verify calls on the same Verifier are safe.
type Verifier struct {
	Config   Config
	Resolver mx.Resolver
	Observer Observer

	// Dialer overrides the transport every Session dials through; nil
	// keeps Session's own default (plain TCP). Set this to a
	// smtp.NewSocks5Dialer result to route verification traffic
	// through an egress proxy.
	Dialer smtp.Dialer

	// newSession builds the Session used to dial one host. Overridable
	// in tests to inject a scripted Dialer per call.
	newSession func(heloName, envelopeSender string) *smtp.Session
}

// New returns a Verifier that looks up MX hosts through resolver.
func New(cfg Config, resolver mx.Resolver) *Verifier {
	v := &Verifier{
		Config:   cfg,
		Resolver: resolver,
		Observer: NopObserver{},
	}
	v.newSession = func(heloName, envelopeSender string) *smtp.Session {
		s := smtp.NewSession(heloName, envelopeSender)
		if v.Dialer != nil {
			s.Dialer = v.Dialer
		}
		return s
	}
	return v
}

// Verify resolves email's domain, dials its MX hosts, and returns a
// classified Result. It never returns an error: every failure mode is
// folded into the Result itself.
func (v *Verifier) Verify(ctx context.Context, email string) Result {
	start := time.Now()

	domain, ok := splitDomain(email)
	if !ok {
		return Result{
			Email:    email,
			Status:   smtp.StatusUnknown,
			SMTPCode: 0,
			MXServer: "error",
			Attempts: 1,
			Reason:   "Invalid email format",
		}
	}

	records := v.Resolver.Resolve(ctx, domain)
	if len(records) == 0 {
		return Result{
			Email:       email,
			Status:      smtp.StatusInvalid,
			SMTPCode:    550,
			MXServer:    "No MX",
			Attempts:    1,
			Reason:      "No MX",
			TimeTakenMs: elapsedMs(start),
		}
	}

	maxAttempts := v.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var last Result
	haveVerdict := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := v.sleepBackoff(ctx, attempt); err != nil {
				return Result{
					Email:       email,
					Status:      smtp.StatusUnknown,
					Reason:      "cancelled",
					Attempts:    attempt - 1,
					TimeTakenMs: elapsedMs(start),
				}
			}
		}

		verdict, code, host, allHostsFailed := v.runAttempt(ctx, records, email)
		if allHostsFailed {
			last = Result{
				Email:            email,
				Status:           smtp.StatusUnknown,
				SMTPCode:         0,
				MXServer:         records[0].Exchange,
				Attempts:         attempt,
				IsTemporaryError: true,
				Reason:           "all MX hosts unreachable",
				TimeTakenMs:      elapsedMs(start),
			}
			haveVerdict = true
			v.Observer.OnAttempt(host, attempt, last)
			continue
		}

		result := Result{
			Email:            email,
			Status:           verdict.Status,
			SMTPCode:         code,
			MXServer:         host,
			Attempts:         attempt,
			IsCatchAll:       verdict.IsCatchAll,
			IsTemporaryError: verdict.IsTemporary,
			Reason:           verdict.Reason,
			TimeTakenMs:      elapsedMs(start),
		}
		haveVerdict = true
		v.Observer.OnAttempt(host, attempt, result)

		switch result.Status {
		case smtp.StatusValid, smtp.StatusInvalid, smtp.StatusCatchAll:
			// Definitive: never retried.
			return result
		default:
			last = result
		}
	}

	if !haveVerdict {
		last = Result{
			Email:            email,
			Status:           smtp.StatusUnknown,
			SMTPCode:         0,
			MXServer:         records[0].Exchange,
			IsTemporaryError: true,
		}
	}
	last.Attempts = maxAttempts
	last.TimeTakenMs = elapsedMs(start)
	return last
}

// runAttempt dials MX hosts in priority order until one yields a
// verdict. It returns allHostsFailed=true only when every host failed
// with a network error.
func (v *Verifier) runAttempt(ctx context.Context, records []mx.Record, email string) (verdict smtp.Verdict, code int, host string, allHostsFailed bool) {
	allHostsFailed = true
	for _, rec := range records {
		session := v.newSession(v.Config.HeloName, v.Config.EnvelopeSender)
		session.Timeout = v.Config.SMTPTimeout

		outcome := session.Run(ctx, rec.Exchange, email)
		if outcome.Failed() {
			continue
		}
		allHostsFailed = false
		return outcome.Verdict, outcome.Code, rec.Exchange, false
	}
	if len(records) > 0 {
		host = records[0].Exchange
	}
	return smtp.Verdict{}, 0, host, allHostsFailed
}

// sleepBackoff sleeps jitter(backoff[attempt-2]) before attempt,
// returning early if ctx is cancelled.
func (v *Verifier) sleepBackoff(ctx context.Context, attempt int) error {
	backoff := v.Config.Backoff
	if len(backoff) == 0 {
		backoff = DefaultConfig().Backoff
	}
	idx := attempt - 2
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoff) {
		idx = len(backoff) - 1
	}
	delay := jitter(backoff[idx], v.Config.JitterFraction)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jitter applies a ±fraction uniform perturbation to d.
func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	offset := (rand.Float64()*2 - 1) * fraction
	return time.Duration(float64(d) * (1 + offset))
}

func splitDomain(email string) (string, bool) {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[1] == "" {
		return "", false
	}
	return strings.ToLower(parts[1]), true
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
