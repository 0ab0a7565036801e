package smtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Table(t *testing.T) {
	cases := []struct {
		name        string
		code        int
		message     string
		wantStatus  Status
		wantCatch   bool
		wantTemp    bool
	}{
		{"ok", 250, "ok", StatusValid, false, false},
		{"forward", 251, "user not local", StatusValid, false, false},
		{"catchall", 252, "cannot verify", StatusCatchAll, true, false},
		{"mailbox unavailable", 550, "no such user", StatusInvalid, false, false},
		{"user not local permanent", 551, "try elsewhere", StatusInvalid, false, false},
		{"storage exceeded", 552, "over quota", StatusInvalid, false, false},
		{"name not allowed", 553, "bad name", StatusInvalid, false, false},
		{"transaction failed at rcpt", 554, "failed", StatusInvalid, false, false},
		{"mailbox busy", 450, "try later", StatusRetryLater, false, true},
		{"local error", 451, "try later", StatusRetryLater, false, true},
		{"insufficient storage", 452, "try later", StatusRetryLater, false, true},
		{"service unavailable", 421, "too busy", StatusRetryLater, false, true},
		{"greylist in a 450", 450, "please retry, greylisted for now", StatusRetryLater, false, true},
		{"greylist text on an otherwise unclassified 4xx", 432, "greylisted, try again", StatusGreylisted, false, true},
		{"other permanent", 511, "bad destination", StatusInvalid, false, false},
		{"other temporary", 432, "try again later", StatusRetryLater, false, true},
		{"unrecognized", 199, "weird", StatusUnknown, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Classify(tc.code, tc.message)
			assert.Equal(t, tc.wantStatus, v.Status)
			assert.Equal(t, tc.wantCatch, v.IsCatchAll)
			assert.Equal(t, tc.wantTemp, v.IsTemporary)
		})
	}
}

// The RCPT stage treats 554 as invalid; the CONNECT stage (session.go)
// treats it as blocked. This is a deliberate asymmetry and this test
// exists to keep it from being "fixed" away.
func TestClassify_554IsInvalidNotBlocked(t *testing.T) {
	v := Classify(554, "transaction failed")
	assert.Equal(t, StatusInvalid, v.Status)
}
