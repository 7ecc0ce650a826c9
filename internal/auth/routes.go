package auth

import (
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/eduaventuras/apiserver/types"
)

// Access is the capability a route requires.
type Access int

const (
	AccessPublic Access = iota
	AccessAuthenticated
	AccessRole
)

func (a Access) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessRole:
		return "role"
	default:
		return "authenticated"
	}
}

// Rule maps a method and path pattern to an access requirement.
// An empty Method matches every method. Patterns are exact paths where a "*"
// segment matches exactly one segment and a trailing "/**" matches any suffix,
// including none.
type Rule struct {
	Method  string       `json:"method,omitempty"`
	Pattern string       `json:"pattern"`
	Access  Access       `json:"-"`
	Roles   []types.Role `json:"roles,omitempty"`
}

// Requirement is the outcome of classifying a request.
type Requirement struct {
	Access Access
	Roles  []types.Role
	// Pattern is the rule that matched, empty for the default.
	Pattern string
}

// Allows reports whether role satisfies a role-restricted requirement.
func (r Requirement) Allows(role types.Role) bool {
	if r.Access != AccessRole {
		return true
	}
	return slices.Contains(r.Roles, role)
}

func public(method, pattern string) Rule {
	return Rule{Method: method, Pattern: pattern, Access: AccessPublic}
}

func authenticated(method, pattern string) Rule {
	return Rule{Method: method, Pattern: pattern, Access: AccessAuthenticated}
}

func restricted(method, pattern string, roles ...types.Role) Rule {
	return Rule{Method: method, Pattern: pattern, Access: AccessRole, Roles: roles}
}

// DefaultRules returns the ordered route table. The first matching rule wins and
// anything unmatched requires authentication.
func DefaultRules() []Rule {
	return []Rule{
		// Static assets, docs and probes.
		public("GET", "/"),
		public("GET", "/index.html"),
		public("GET", "/favicon.ico"),
		public("GET", "/css/**"),
		public("GET", "/js/**"),
		public("GET", "/images/**"),
		public("GET", "/healthz"),
		public("GET", "/metrics"),
		public("GET", "/api-docs/**"),

		// Public API.
		public("POST", "/api/usuarios/registro"),
		public("POST", "/api/usuarios/login"),
		public("POST", "/api/password/recuperar"),
		public("POST", "/api/password/validar-token"),
		public("POST", "/api/password/restablecer"),
		public("GET", "/api/idioma/**"),
		public("GET", "/api/estadisticas/resumen"),
		public("GET", "/api/perfil/foto/*"),

		// Authenticated exceptions inside otherwise restricted or public prefixes.
		authenticated("GET", "/api/usuarios/me"),
		authenticated("POST", "/api/password/cambiar"),
		authenticated("", "/api/perfil/**"),
		authenticated("GET", "/api/recursos/*/descargar"),

		// Role-restricted prefixes.
		restricted("", "/api/admin/**", types.RoleAdmin),
		restricted("", "/api/usuarios/**", types.RoleAdmin),
		restricted("GET", "/api/materias/todas", types.RoleAdmin),
		restricted("GET", "/api/recursos/todos", types.RoleAdmin),
		restricted("POST", "/api/recursos/subir", types.RoleTeacher, types.RoleAdmin),

		// Public catalog reads.
		public("GET", "/api/materias/**"),
		public("GET", "/api/recursos/**"),

		// Catalog mutations.
		restricted("", "/api/materias/**", types.RoleAdmin),
		restricted("PUT", "/api/recursos/**", types.RoleAdmin),
		restricted("DELETE", "/api/recursos/**", types.RoleTeacher, types.RoleAdmin),

		authenticated("", "/api/**"),
	}
}

type compiledRule struct {
	rule     Rule
	segments []string
	prefix   bool
}

// Classifier evaluates an ordered rule table. It is read-only after construction.
type Classifier struct {
	rules []compiledRule
}

// NewClassifier validates and compiles rules, preserving their order.
func NewClassifier(rules []Rule) (*Classifier, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if !strings.HasPrefix(rule.Pattern, "/") {
			return nil, fmt.Errorf("rule %d: pattern %q must start with /", i, rule.Pattern)
		}
		if rule.Access == AccessRole && len(rule.Roles) == 0 {
			return nil, fmt.Errorf("rule %d: pattern %q restricts access without roles", i, rule.Pattern)
		}
		segments := splitPath(rule.Pattern)
		prefix := false
		for j, segment := range segments {
			if segment != "**" {
				continue
			}
			if j != len(segments)-1 {
				return nil, fmt.Errorf("rule %d: ** must be the last segment of %q", i, rule.Pattern)
			}
			prefix = true
			segments = segments[:j]
		}
		rule.Method = strings.ToUpper(rule.Method)
		compiled = append(compiled, compiledRule{rule: rule, segments: segments, prefix: prefix})
	}
	return &Classifier{rules: compiled}, nil
}

// DefaultClassifier compiles DefaultRules.
func DefaultClassifier() *Classifier {
	classifier, err := NewClassifier(DefaultRules())
	if err != nil {
		panic(err)
	}
	return classifier
}

// Classify returns the requirement of the first rule matching method and path.
func (c *Classifier) Classify(method, requestPath string) Requirement {
	method = strings.ToUpper(method)
	if method == "HEAD" {
		method = "GET"
	}
	segments := splitPath(cleanPath(requestPath))
	for _, compiled := range c.rules {
		if compiled.rule.Method != "" && compiled.rule.Method != method {
			continue
		}
		if !compiled.matches(segments) {
			continue
		}
		return Requirement{
			Access:  compiled.rule.Access,
			Roles:   compiled.rule.Roles,
			Pattern: compiled.rule.Pattern,
		}
	}
	return Requirement{Access: AccessAuthenticated}
}

// Rules returns a copy of the ordered table.
func (c *Classifier) Rules() []Rule {
	rules := make([]Rule, len(c.rules))
	for i, compiled := range c.rules {
		rules[i] = compiled.rule
	}
	return rules
}

func (r compiledRule) matches(segments []string) bool {
	if r.prefix {
		if len(segments) < len(r.segments) {
			return false
		}
	} else if len(segments) != len(r.segments) {
		return false
	}
	for i, pattern := range r.segments {
		if pattern == "*" {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if pattern != segments[i] {
			return false
		}
	}
	return true
}

// RoutingPath returns the path the router dispatches on: the escaped form
// when the request carries one, the decoded path otherwise.
func RoutingPath(u *url.URL) string {
	if u.RawPath != "" {
		return u.RawPath
	}
	return u.Path
}

// MalformedPath reports whether p could be read as a different route after
// decoding or cleaning: dot or empty segments, and escaped separators or dots.
func MalformedPath(p string) bool {
	lower := strings.ToLower(p)
	for _, escaped := range []string{"%2f", "%2e", "%5c", "\\"} {
		if strings.Contains(lower, escaped) {
			return true
		}
	}
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, segment := range segments {
		switch segment {
		case ".", "..":
			return true
		case "":
			if i != len(segments)-1 {
				return true
			}
		}
	}
	return false
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
