package naming

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var dnsLabelRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

/**
true if the name is a valid kubernetes object name in the DNS-label sense:
lowercase alphanumerics and hyphens, 1-63 characters, not starting or ending with a hyphen
*/
func IsValidObjectName(name string) bool {
	return dnsLabelRegex.MatchString(name)
}

func managedPrefix(template string) string {
	return template + "-"
}

/**
derives the name for a new job from the template name and the given time
*/
func DeriveName(template string, now time.Time) string {
	return fmt.Sprintf("%s%d", managedPrefix(template), now.Unix())
}

/**
true if the given name belongs to the lineage of jobs created from the given template.
Both conditions must hold, a remembered or listed name that fails either one is never treated as ours.
*/
func IsManaged(name string, template string) bool {
	if name == "" || template == "" {
		return false
	}
	if !IsValidObjectName(name) {
		return false
	}
	return strings.HasPrefix(name, managedPrefix(template))
}

/**
Policy binds the naming rules to one template name and a clock
*/
type Policy struct {
	Template string
	Now      func() time.Time
}

func NewPolicy(template string) Policy {
	return Policy{Template: template, Now: time.Now}
}

func (p Policy) DeriveName() string {
	return DeriveName(p.Template, p.Now())
}

func (p Policy) IsManaged(name string) bool {
	return IsManaged(name, p.Template)
}
