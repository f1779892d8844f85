package faucet

import (
	"fmt"
	"net/netip"
	"strings"
)

// KeyPolicy decides what identifies a requester for the cooldown.
type KeyPolicy string

// Set of cooldown key policies.
const (
	KeyAddress KeyPolicy = "address"
	KeyIP      KeyPolicy = "ip"
	KeyBoth    KeyPolicy = "both"
)

// ParseKeyPolicy converts a string into a policy.
func ParseKeyPolicy(s string) (KeyPolicy, error) {
	switch p := KeyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case KeyAddress, KeyIP, KeyBoth:
		return p, nil
	}
	return "", fmt.Errorf("unknown cooldown key policy %q", s)
}

// cooldownKeys returns the set of keys a claim is rate limited on.
func (p KeyPolicy) cooldownKeys(req ClaimRequest) []string {
	var keys []string

	if p == KeyAddress || p == KeyBoth {
		keys = append(keys, "addr:"+strings.ToLower(req.Address))
	}

	if p == KeyIP || p == KeyBoth {
		if ip := ClampIP(req.ClientIP); ip != "" {
			keys = append(keys, "ip:"+ip)
		}
	}

	return keys
}

// ClampIP normalizes a client address for use as a cooldown key. IPv6
// clients commonly control a whole /64 so the prefix is used.
func ClampIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}

	switch {
	case addr.Is4(), addr.Is4In6():
		return addr.Unmap().String()

	case addr.Is6():
		prefix, err := addr.WithZone("").Prefix(64)
		if err != nil {
			return addr.String()
		}
		return prefix.String()
	}

	return addr.String()
}
