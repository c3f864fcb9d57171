package sandbox

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentjido/jido-shell/parser"
	"github.com/agentjido/jido-shell/shellerr"
)

// networkCommands is the fixed set of tools the policy applies to.
// Lines invoking anything else pass through unchecked.
var networkCommands = map[string]bool{
	"curl":     true,
	"wget":     true,
	"nc":       true,
	"ncat":     true,
	"telnet":   true,
	"ssh":      true,
	"scp":      true,
	"sftp":     true,
	"ftp":      true,
	"ping":     true,
	"dig":      true,
	"nslookup": true,
}

// Decision is the policy default applied when no list matches.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// Policy is the network-access policy for a sandbox. The zero value
// denies everything; use NewPolicy for a ready-to-populate value.
type Policy struct {
	Default      Decision
	AllowDomains map[string]bool
	BlockDomains map[string]bool
	AllowPorts   map[int]bool
	BlockPorts   map[int]bool
}

// NewPolicy returns an empty default-deny policy.
func NewPolicy() *Policy {
	return &Policy{
		Default:      Deny,
		AllowDomains: make(map[string]bool),
		BlockDomains: make(map[string]bool),
		AllowPorts:   make(map[int]bool),
		BlockPorts:   make(map[int]bool),
	}
}

// endpoint is one network destination extracted from an argument list.
type endpoint struct {
	domain string // empty when only a port was found
	port   int    // 0 when unknown
}

var (
	urlRe      = regexp.MustCompile(`^[a-z][a-z0-9+.-]*://`)
	hostPortRe = regexp.MustCompile(`^([A-Za-z0-9._-]+):([0-9]{1,5})$`)
	portFlagRe = regexp.MustCompile(`^--port=([0-9]{1,5})$`)
)

var schemePorts = map[string]int{
	"http":   80,
	"https":  443,
	"ftp":    21,
	"ssh":    22,
	"scp":    22,
	"sftp":   22,
	"telnet": 23,
}

// extractEndpoints pulls destinations out of args. unparseable reports
// that something endpoint-shaped resisted extraction, which is treated
// conservatively when allow-lists are configured.
func extractEndpoints(args []string) (eps []endpoint, unparseable bool) {
	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case urlRe.MatchString(arg):
			u, err := url.Parse(arg)
			if err != nil || u.Hostname() == "" {
				unparseable = true
				continue
			}
			ep := endpoint{domain: strings.ToLower(u.Hostname())}
			if p := u.Port(); p != "" {
				ep.port, _ = strconv.Atoi(p)
			} else if p, ok := schemePorts[u.Scheme]; ok {
				ep.port = p
			}
			eps = append(eps, ep)

		case hostPortRe.MatchString(arg):
			m := hostPortRe.FindStringSubmatch(arg)
			port, _ := strconv.Atoi(m[2])
			eps = append(eps, endpoint{domain: strings.ToLower(m[1]), port: port})

		case portFlagRe.MatchString(arg):
			m := portFlagRe.FindStringSubmatch(arg)
			port, _ := strconv.Atoi(m[1])
			eps = append(eps, endpoint{port: port})

		case arg == "-p" && i+1 < len(args):
			if port, err := strconv.Atoi(args[i+1]); err == nil {
				eps = append(eps, endpoint{port: port})
				i++
			}
		}
	}
	return eps, unparseable
}

// domainMatches reports whether domain is in set, either exactly or as
// a subdomain of an entry.
func domainMatches(domain string, set map[string]bool) bool {
	if set[domain] {
		return true
	}
	for entry := range set {
		if strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}

// CheckLine enforces the policy against one statement line.
//
// Decision order, first match wins:
//  1. a block-list match denies
//  2. allow-lists configured but nothing extractable denies
//  3. an endpoint outside a configured allow-list denies
//  4. default deny with no allow-lists configured denies
//  5. otherwise allow
//
// Lines that do not tokenise are not blocked here; they fail at parse
// time in the runner.
func (p *Policy) CheckLine(line string) error {
	words, err := parser.Tokenize(line)
	if err != nil || len(words) == 0 {
		return nil
	}

	cmd := words[0]
	if !networkCommands[cmd] {
		return nil
	}

	blocked := func(kind, value string) error {
		return shellerr.Newf(shellerr.ShellNetworkBlocked, "network access blocked: %s", line).
			WithContext("line", line).
			WithContext("command", cmd).
			WithContext(kind, value)
	}

	eps, unparseable := extractEndpoints(words[1:])

	// 1. Block lists always win.
	for _, ep := range eps {
		if ep.domain != "" && domainMatches(ep.domain, p.BlockDomains) {
			return blocked("domain", ep.domain)
		}
		if ep.port != 0 && p.BlockPorts[ep.port] {
			return blocked("port", strconv.Itoa(ep.port))
		}
	}

	haveAllowLists := len(p.AllowDomains) > 0 || len(p.AllowPorts) > 0

	// 2. With allow-lists configured, an unverifiable line is denied.
	if haveAllowLists && (len(eps) == 0 || unparseable) {
		return blocked("reason", "no verifiable endpoint")
	}

	// 3. Every extracted endpoint must be inside the configured lists.
	for _, ep := range eps {
		if len(p.AllowDomains) > 0 {
			if ep.domain == "" {
				continue
			}
			if !domainMatches(ep.domain, p.AllowDomains) {
				return blocked("domain", ep.domain)
			}
		}
		if len(p.AllowPorts) > 0 && ep.port != 0 && !p.AllowPorts[ep.port] {
			return blocked("port", strconv.Itoa(ep.port))
		}
	}

	// 4. Default-deny applies when nothing was configured to allow.
	if p.Default != Allow && !haveAllowLists {
		return blocked("reason", "default deny")
	}

	return nil
}
