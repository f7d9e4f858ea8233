// Package permission evaluates whether a requested operation on a given
// resource is allowed before dispatch. Deny decisions short-circuit the
// router: no backend ever observes a denied request.
package permission

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/hanzoai/aci/internal/logging"
	"github.com/hanzoai/aci/internal/operation"
)

// Decision is the outcome of one authorization check. Computed fresh per
// request; confirmation answers are the only cached state, keyed by
// (operation category, resource) for the process lifetime.
type Decision struct {
	Allowed bool
	Reason  string
}

var (
	allow = Decision{Allowed: true}
)

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// ConfirmFunc asks the user to approve an elevated operation. Invoked
// synchronously; the answer is cached per (category, resource).
type ConfirmFunc func(op, resource string) bool

// Policy is the fixed permission policy supplied at startup.
type Policy struct {
	// Allow lists resource path prefixes that are always permitted.
	Allow []string

	// Deny lists resource path prefixes that are always refused.
	// Deny wins over Allow.
	Deny []string

	// Confirm is the optional interactive confirmation hook. When nil,
	// elevated operations outside the allow list are denied.
	Confirm ConfirmFunc
}

// Gate enforces a Policy. Safe for concurrent use.
type Gate struct {
	policy Policy

	mu      sync.Mutex
	answers map[string]bool // (category|resource) -> confirmation answer
}

// NewGate creates a gate for the given policy. Allow/deny entries are
// resolved to absolute paths where possible so prefix matching is not
// fooled by relative spellings.
func NewGate(policy Policy) *Gate {
	policy.Allow = normalizePaths(policy.Allow)
	policy.Deny = normalizePaths(policy.Deny)
	return &Gate{
		policy:  policy,
		answers: make(map[string]bool),
	}
}

func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}

// Authorize evaluates the policy for one operation/resource pair.
//
// Policy order: explicit deny, explicit allow, restricted system path
// (for mutating operations), elevated-without-confirmation, interactive
// confirmation, default allow.
func (g *Gate) Authorize(cap operation.Capability, resource string) Decision {
	res := resolve(resource)

	if match(g.policy.Deny, res) {
		logging.Permission("Deny (deny list): op=%s resource=%s", cap.Name, resource)
		return deny("resource is on the deny list: " + resource)
	}

	if match(g.policy.Allow, res) {
		logging.PermissionDebug("Allow (allow list): op=%s resource=%s", cap.Name, resource)
		return allow
	}

	// Sensitive system paths are implicitly denied for mutating
	// operations unless explicitly allow-listed.
	if cap.Mutating && isRestrictedPath(res) {
		logging.Permission("Deny (restricted path): op=%s resource=%s", cap.Name, resource)
		return deny("refusing to modify restricted system path: " + resource)
	}

	if !cap.Elevated {
		return allow
	}

	if g.policy.Confirm == nil {
		logging.Permission("Deny (no confirmation hook): op=%s resource=%s", cap.Name, resource)
		return deny("operation " + cap.Name + " requires confirmation but none is configured")
	}

	key := operation.Category(cap.Name) + "|" + res

	g.mu.Lock()
	answer, asked := g.answers[key]
	g.mu.Unlock()

	if !asked {
		answer = g.policy.Confirm(cap.Name, resource)
		g.mu.Lock()
		g.answers[key] = answer
		g.mu.Unlock()
		logging.Permission("Confirmation for %s on %q: %v", cap.Name, resource, answer)
	}

	if !answer {
		return deny("user declined " + cap.Name + " on " + resource)
	}
	return allow
}

// resolve canonicalizes a resource path. Non-path resources (application
// names, commands) pass through unchanged.
func resolve(resource string) string {
	if resource == "" || !strings.ContainsAny(resource, "/\\") {
		return resource
	}
	if real, err := filepath.EvalSymlinks(resource); err == nil {
		return real
	}
	if abs, err := filepath.Abs(resource); err == nil {
		return abs
	}
	return resource
}

// match reports whether res equals a listed prefix or lives under it.
func match(prefixes []string, res string) bool {
	if res == "" {
		return false
	}
	for _, p := range prefixes {
		if res == p || strings.HasPrefix(res, p+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// restrictedPaths are sensitive system locations, per platform.
var restrictedPaths = func() []string {
	if runtime.GOOS == "windows" {
		return []string{
			`C:\Windows`,
			`C:\Program Files`,
			`C:\Program Files (x86)`,
			`C:\ProgramData`,
		}
	}
	return []string{
		"/etc", "/var", "/usr", "/bin", "/sbin",
		"/boot", "/dev", "/proc", "/sys", "/root", "/private",
	}
}()

func isRestrictedPath(res string) bool {
	if res == "" || !strings.ContainsAny(res, "/\\") {
		return false
	}
	for _, p := range restrictedPaths {
		if res == p || strings.HasPrefix(res, p+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}
