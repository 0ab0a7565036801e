package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainOf(t *testing.T) {
	cases := map[string]struct {
		domain string
		ok     bool
	}{
		"user@example.com": {"example.com", true},
		"user@Example.COM": {"example.com", true},
		"not-an-email":     {"", false},
		"a@b@c":            {"", false},
		"a@":               {"", false},
	}
	for email, want := range cases {
		domain, ok := domainOf(email)
		assert.Equal(t, want.ok, ok, email)
		assert.Equal(t, want.domain, domain, email)
	}
}
