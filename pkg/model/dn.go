// Package model holds the monitoring entities (contacts, monitors, probes)
// and their directory mapping. Entities are constructed either from API
// input or from a raw directory entry; both paths run the same validation,
// so an instance that exists is a valid one.
package model

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// UsersBase is the directory subtree holding all account entries.
	UsersBase = "ou=users, o=smartdc"

	// OperatorsGroupDN names the directory group whose members may act on
	// any account and on compute nodes.
	OperatorsGroupDN = "cn=operators, ou=groups, o=smartdc"
)

var (
	// NameRE bounds contact, monitor and probe names.
	NameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]{0,31}$`)

	// UUIDRE is the canonical lowercase form used for account, machine
	// and server identifiers.
	UUIDRE = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

func ValidName(s string) bool { return NameRE.MatchString(s) }
func ValidUUID(s string) bool { return UUIDRE.MatchString(s) }

// AccountDN returns the entry DN for an account.
func AccountDN(user string) string {
	return fmt.Sprintf("uuid=%s, %s", user, UsersBase)
}

// ContactDN returns the entry DN for a contact under an account.
func ContactDN(user, name string) string {
	return fmt.Sprintf("amoncontact=%s, %s", name, AccountDN(user))
}

// MonitorDN returns the entry DN for a monitor under an account.
func MonitorDN(user, name string) string {
	return fmt.Sprintf("amonmonitor=%s, %s", name, AccountDN(user))
}

// ProbeDN returns the entry DN for a probe under a monitor.
func ProbeDN(user, monitor, name string) string {
	return fmt.Sprintf("amonprobe=%s, %s", name, MonitorDN(user, monitor))
}

// splitDN breaks a DN into attr=value pairs, tolerating optional whitespace
// after separators.
func splitDN(dn string) ([][2]string, error) {
	parts := strings.Split(dn, ",")
	rdns := make([][2]string, 0, len(parts))
	for _, part := range parts {
		attr, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || attr == "" || value == "" {
			return nil, fmt.Errorf("malformed DN %q", dn)
		}
		rdns = append(rdns, [2]string{strings.ToLower(attr), value})
	}
	return rdns, nil
}

func expectSuffix(dn string, rdns [][2]string, want ...string) error {
	if len(rdns) != len(want)+3 {
		return fmt.Errorf("unexpected DN %q", dn)
	}
	tail := rdns[len(want):]
	if tail[0][0] != "uuid" || tail[1][0] != "ou" || tail[1][1] != "users" || tail[2][0] != "o" || tail[2][1] != "smartdc" {
		return fmt.Errorf("DN %q is not under the users subtree", dn)
	}
	for i, attr := range want {
		if rdns[i][0] != attr {
			return fmt.Errorf("DN %q is not an %s entry", dn, attr)
		}
	}
	return nil
}

// ParseContactDN extracts (user, name) from a contact entry DN.
func ParseContactDN(dn string) (user, name string, err error) {
	rdns, err := splitDN(dn)
	if err != nil {
		return "", "", err
	}
	if err := expectSuffix(dn, rdns, "amoncontact"); err != nil {
		return "", "", err
	}
	return rdns[1][1], rdns[0][1], nil
}

// ParseMonitorDN extracts (user, name) from a monitor entry DN.
func ParseMonitorDN(dn string) (user, name string, err error) {
	rdns, err := splitDN(dn)
	if err != nil {
		return "", "", err
	}
	if err := expectSuffix(dn, rdns, "amonmonitor"); err != nil {
		return "", "", err
	}
	return rdns[1][1], rdns[0][1], nil
}

// ParseProbeDN extracts (user, monitor, name) from a probe entry DN.
func ParseProbeDN(dn string) (user, monitor, name string, err error) {
	rdns, err := splitDN(dn)
	if err != nil {
		return "", "", "", err
	}
	if err := expectSuffix(dn, rdns, "amonprobe", "amonmonitor"); err != nil {
		return "", "", "", err
	}
	return rdns[2][1], rdns[1][1], rdns[0][1], nil
}

func singleAttr(attrs map[string][]string, name string) string {
	if vals := attrs[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func hasObjectClass(attrs map[string][]string, class string) bool {
	for _, v := range attrs["objectclass"] {
		if strings.EqualFold(v, class) {
			return true
		}
	}
	return false
}
