package registry

import (
	"regexp"
	"strings"

	"github.com/antigravity-dev/capgate/core"
)

// displayNamePattern matches namespace[:action] where each segment starts
// with a letter and may contain letters, digits, underscore or hyphen.
var displayNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*(:[A-Za-z][A-Za-z0-9_-]*)?$`)

// fqdnComponentPattern matches one lowercase FQDN segment.
var fqdnComponentPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// shortHashPattern matches exactly 4 lowercase hex characters.
var shortHashPattern = regexp.MustCompile(`^[0-9a-f]{4}$`)

// ValidateDisplayName checks namespace:action (or a bare namespace) against
// the identifier grammar.
func ValidateDisplayName(name string) error {
	if !displayNamePattern.MatchString(name) {
		return core.NewFrameworkError("registry.ValidateDisplayName", core.KindInvalidName,
			core.ErrInvalidName).WithID(name)
	}
	return nil
}

// ValidateFQDNComponents checks the five FQDN segments individually.
func ValidateFQDNComponents(org, project, namespace, action, shortHash string) error {
	for _, c := range []string{org, project, namespace, action} {
		if !fqdnComponentPattern.MatchString(c) {
			return core.NewFrameworkError("registry.ValidateFQDNComponents", core.KindInvalidName,
				core.ErrInvalidName).WithID(c)
		}
	}
	if !shortHashPattern.MatchString(shortHash) {
		return core.NewFrameworkError("registry.ValidateFQDNComponents", core.KindInvalidName,
			core.ErrInvalidName).WithID(shortHash)
	}
	return nil
}

// BuildFQDN assembles org.project.namespace.action.shortHash.
func BuildFQDN(org, project, namespace, action, shortHash string) string {
	return strings.Join([]string{org, project, namespace, action, shortHash}, ".")
}

// ParseFQDN splits a five-component FQDN back into its parts. It returns
// false if name does not have exactly five dot-separated, grammar-valid
// components.
func ParseFQDN(name string) (org, project, namespace, action, shortHash string, ok bool) {
	parts := strings.Split(name, ".")
	if len(parts) != 5 {
		return "", "", "", "", "", false
	}
	org, project, namespace, action, shortHash = parts[0], parts[1], parts[2], parts[3], parts[4]
	if ValidateFQDNComponents(org, project, namespace, action, shortHash) != nil {
		return "", "", "", "", "", false
	}
	return org, project, namespace, action, shortHash, true
}

// LooksLikeFQDN reports whether name has the dotted five-component shape,
// used by resolveByName to decide between FQDN lookup and displayName
// lookup.
func LooksLikeFQDN(name string) bool {
	_, _, _, _, _, ok := ParseFQDN(name)
	return ok
}
