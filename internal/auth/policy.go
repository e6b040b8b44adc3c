package auth

import (
	"net/http"
	"strings"
)

const coachingsPrefix = "/api/v1/coachings/"

// operatorActions are the POST endpoints front-desk operators may call.
// Every other write under a coaching needs admin.
var operatorActions = []string{"/payments", "/reminders"}

// Policy maps requests to the minimum role they need.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt reports whether r skips authentication entirely.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole returns the role r needs. Reads need viewer. Payments and
// reminders on a record need operator. Other coaching writes need admin.
// Paths outside /api/ are not guarded.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil || !strings.HasPrefix(r.URL.Path, "/api/") {
		return "", false
	}
	if isRead(r.Method) {
		return RoleViewer, true
	}
	if !strings.HasPrefix(r.URL.Path, coachingsPrefix) {
		return RoleOperator, true
	}
	resource := coachingResource(r.URL.Path)
	if strings.HasPrefix(resource, "records/") {
		for _, action := range operatorActions {
			if strings.HasSuffix(resource, action) {
				return RoleOperator, true
			}
		}
	}
	return RoleAdmin, true
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// CoachingIDFromPath extracts {cid} from /api/v1/coachings/{cid}/...
func CoachingIDFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, coachingsPrefix)
	if !ok {
		return ""
	}
	cid, _, _ := strings.Cut(rest, "/")
	return cid
}

func coachingResource(path string) string {
	_, resource, _ := strings.Cut(strings.TrimPrefix(path, coachingsPrefix), "/")
	return resource
}
