package routing

import (
	"regexp"
	"strings"
)

// pathMatcher matches request paths against a route pattern supporting
// exact segments and the * (single segment) and ** (any depth) wildcards.
type pathMatcher struct {
	pattern string
	regex   *regexp.Regexp
}

func newPathMatcher(pattern string) (*pathMatcher, error) {
	regex, err := regexp.Compile(wildcardToRegex(pattern))
	if err != nil {
		return nil, err
	}
	return &pathMatcher{pattern: pattern, regex: regex}, nil
}

// wildcardToRegex converts a wildcard pattern to a regex pattern.
func wildcardToRegex(pattern string) string {
	var result strings.Builder
	result.WriteString("^")

	i := 0
	for i < len(pattern) {
		switch {
		case i+1 < len(pattern) && pattern[i:i+2] == "**":
			result.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			result.WriteString("[^/]*")
			i++
		case pattern[i] == '?':
			result.WriteString("[^/]")
			i++
		default:
			result.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		}
	}

	result.WriteString("$")
	return result.String()
}

func (m *pathMatcher) match(path string) bool {
	return m.regex.MatchString(path)
}

// methodMatcher matches HTTP methods. An empty method set matches any.
type methodMatcher struct {
	methods map[string]bool
}

func newMethodMatcher(method string) *methodMatcher {
	m := &methodMatcher{methods: make(map[string]bool)}
	for _, part := range strings.Split(method, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			m.methods[strings.ToUpper(part)] = true
		}
	}
	return m
}

func (m *methodMatcher) match(method string) bool {
	if len(m.methods) == 0 || m.methods["*"] {
		return true
	}

	method = strings.ToUpper(method)

	// HEAD automatically matches GET
	if method == "HEAD" && m.methods["GET"] {
		return true
	}

	return m.methods[method]
}
