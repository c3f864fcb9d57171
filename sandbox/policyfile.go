package sandbox

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// policyDocument is the on-disk shape of a policy file. Files support
// comments and trailing commas via tailscale/hujson.
type policyDocument struct {
	Default      string   `json:"default,omitempty"`
	AllowDomains []string `json:"allow_domains,omitempty"`
	BlockDomains []string `json:"block_domains,omitempty"`
	AllowPorts   []int    `json:"allow_ports,omitempty"`
	BlockPorts   []int    `json:"block_ports,omitempty"`
}

// LoadPolicy reads a network policy from path. An absent "default"
// field means deny.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses a HuJSON policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid policy file: %w", err)
	}

	var doc policyDocument
	if err := json.Unmarshal(standardized, &doc); err != nil {
		return nil, fmt.Errorf("invalid policy file: %w", err)
	}

	p := NewPolicy()
	switch doc.Default {
	case "", "deny":
		p.Default = Deny
	case "allow":
		p.Default = Allow
	default:
		return nil, fmt.Errorf("invalid policy default %q (want allow or deny)", doc.Default)
	}

	for _, d := range doc.AllowDomains {
		p.AllowDomains[d] = true
	}
	for _, d := range doc.BlockDomains {
		p.BlockDomains[d] = true
	}
	for _, port := range doc.AllowPorts {
		p.AllowPorts[port] = true
	}
	for _, port := range doc.BlockPorts {
		p.BlockPorts[port] = true
	}
	return p, nil
}
