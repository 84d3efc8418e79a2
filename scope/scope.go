// Package scope implements the space-delimited scope algebra used for client
// ceilings, subject grants and token scopes.
package scope

import "strings"

// All is the wildcard scope. It is only ever granted to internal clients.
const All = "*"

// Split breaks a space-delimited scope string into its tokens. Empty tokens
// are dropped and duplicates collapsed, preserving first-seen order.
func Split(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))

	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}

	return out
}

// Join is the inverse of Split.
func Join(tokens []string) string {
	return strings.Join(tokens, " ")
}

// Normalize returns s with redundant whitespace and duplicates removed.
func Normalize(s string) string {
	return Join(Split(s))
}

// IsAll reports whether s is the wildcard scope.
func IsAll(s string) bool {
	return strings.TrimSpace(s) == All
}

// Validate reports whether requested fits within ceiling.
//
// A wildcard ceiling accepts anything; a wildcard request is rejected unless
// the ceiling is also the wildcard; an empty request is always valid.
func Validate(ceiling, requested string) bool {
	if IsAll(ceiling) {
		return true
	}

	req := Split(requested)
	if len(req) == 0 {
		return true
	}

	allowed := set(Split(ceiling))
	for _, s := range req {
		if s == All {
			return false
		}
		if _, ok := allowed[s]; !ok {
			return false
		}
	}

	return true
}

// Merge computes the scope granted to a token from the subject's scope, the
// requested scope and the client's baseline scope. When no scope was
// requested, the client's baseline takes its place.
//
// An empty subject scope means the subject is not restricted beyond the
// request.
func Merge(subjectScope, requestScope, clientScope string) string {
	other := requestScope
	if strings.TrimSpace(other) == "" {
		other = clientScope
	}

	subjectScope = strings.TrimSpace(subjectScope)
	if subjectScope == "" {
		subjectScope = All
	}

	switch {
	case IsAll(other):
		return Normalize(subjectScope)
	case IsAll(subjectScope):
		return Normalize(other)
	}

	return Join(Intersect(Split(subjectScope), Split(other)))
}

// Intersect returns the tokens of a that also appear in b, in a's order.
func Intersect(a, b []string) []string {
	inB := set(b)
	out := make([]string, 0, len(a))

	for _, s := range a {
		if _, ok := inB[s]; ok {
			out = append(out, s)
		}
	}

	return out
}

// Union returns the tokens of a followed by those of b not already in a.
func Union(a, b string) string {
	return Normalize(a + " " + b)
}

// Overlap returns the tokens of requested that are already present in have.
func Overlap(have, requested string) []string {
	return Intersect(Split(requested), Split(have))
}

// Contains reports whether the scope have covers every token of want.
// A wildcard have covers everything.
func Contains(have, want string) bool {
	if IsAll(have) {
		return true
	}

	h := set(Split(have))
	for _, s := range Split(want) {
		if _, ok := h[s]; !ok {
			return false
		}
	}

	return true
}

func set(tokens []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}

	return m
}
