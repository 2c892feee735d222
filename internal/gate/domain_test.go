package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDomainAllowed(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		allowed []string
		want    bool
	}{
		{
			name:    "exact match",
			host:    "elevateforhumanity.org",
			allowed: []string{"elevateforhumanity.org"},
			want:    true,
		},
		{
			name:    "proper subdomain matches",
			host:    "app.elevateforhumanity.org",
			allowed: []string{"elevateforhumanity.org"},
			want:    true,
		},
		{
			name:    "www prefix stripped",
			host:    "www.elevateforhumanity.org",
			allowed: []string{"elevateforhumanity.org"},
			want:    true,
		},
		{
			name:    "substring overlap is not a match",
			host:    "fake-elevateforhumanity.org.evil.com",
			allowed: []string{"elevateforhumanity.org"},
			want:    false,
		},
		{
			name:    "allowed entry as suffix of host without dot boundary",
			host:    "notelevateforhumanity.org",
			allowed: []string{"elevateforhumanity.org"},
			want:    false,
		},
		{
			name:    "host containing allowed entry mid-string",
			host:    "evil-domain.com",
			allowed: []string{"in.com"},
			want:    false,
		},
		{
			name:    "localhost always allowed",
			host:    "localhost",
			allowed: []string{"example.org"},
			want:    true,
		},
		{
			name:    "loopback always allowed",
			host:    "127.0.0.1",
			allowed: []string{"example.org"},
			want:    true,
		},
		{
			name:    "localhost with port allowed",
			host:    "localhost:3000",
			allowed: nil,
			want:    true,
		},
		{
			name:    "case insensitive",
			host:    "EXAMPLE.ORG",
			allowed: []string{"example.org"},
			want:    true,
		},
		{
			name:    "port stripped before comparison",
			host:    "example.org:8443",
			allowed: []string{"example.org"},
			want:    true,
		},
		{
			name:    "empty host denied",
			host:    "",
			allowed: []string{"example.org"},
			want:    false,
		},
		{
			name:    "empty allow list denies non-local hosts",
			host:    "example.org",
			allowed: nil,
			want:    false,
		},
		{
			name:    "empty allow entries skipped",
			host:    "example.org",
			allowed: []string{"", "example.org"},
			want:    true,
		},
		{
			name:    "multiple entries, second matches",
			host:    "staging.acme.org",
			allowed: []string{"example.org", "acme.org"},
			want:    true,
		},
		{
			name:    "trailing dot normalized",
			host:    "example.org.",
			allowed: []string{"example.org"},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsDomainAllowed(tt.host, tt.allowed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Example.ORG", "example.org"},
		{"www.example.org", "example.org"},
		{"example.org:8080", "example.org"},
		{"  example.org  ", "example.org"},
		{"example.org.", "example.org"},
		{"", ""},
		{"127.0.0.1:9000", "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHost(tt.in))
		})
	}
}
