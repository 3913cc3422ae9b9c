package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathMatcher(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		match   bool
	}{
		{name: "exact match", pattern: "/api/users", path: "/api/users", match: true},
		{name: "exact mismatch", pattern: "/api/users", path: "/api/orders", match: false},
		{name: "single wildcard matches segment", pattern: "/api/*/detail", path: "/api/users/detail", match: true},
		{name: "single wildcard stops at slash", pattern: "/api/*", path: "/api/users/detail", match: false},
		{name: "single wildcard empty segment", pattern: "/api/*", path: "/api/", match: true},
		{name: "double wildcard any depth", pattern: "/api/**", path: "/api/users/42/detail", match: true},
		{name: "double wildcard zero depth", pattern: "/api/**", path: "/api/", match: true},
		{name: "double wildcard prefix", pattern: "/static/**", path: "/api/users", match: false},
		{name: "question mark single char", pattern: "/api/v?", path: "/api/v1", match: true},
		{name: "question mark not slash", pattern: "/api/v?", path: "/api/v/", match: false},
		{name: "regex metachars are literal", pattern: "/api/users.json", path: "/api/usersXjson", match: false},
		{name: "no partial match", pattern: "/api", path: "/api/users", match: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := newPathMatcher(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.match, m.match(tt.path))
		})
	}
}

func TestMethodMatcher(t *testing.T) {
	tests := []struct {
		name    string
		methods string
		method  string
		match   bool
	}{
		{name: "empty matches any", methods: "", method: "DELETE", match: true},
		{name: "star matches any", methods: "*", method: "PATCH", match: true},
		{name: "exact match", methods: "GET", method: "GET", match: true},
		{name: "case insensitive", methods: "get", method: "GET", match: true},
		{name: "mismatch", methods: "GET", method: "POST", match: false},
		{name: "head matches get", methods: "GET", method: "HEAD", match: true},
		{name: "head without get", methods: "POST", method: "HEAD", match: false},
		{name: "comma separated list", methods: "GET,POST", method: "POST", match: true},
		{name: "list with spaces", methods: "GET, POST", method: "POST", match: true},
		{name: "not in list", methods: "GET,POST", method: "DELETE", match: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMethodMatcher(tt.methods)
			assert.Equal(t, tt.match, m.match(tt.method))
		})
	}
}
