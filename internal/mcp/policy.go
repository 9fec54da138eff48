package mcp

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/forest6511/keyp/internal/cli"
)

// PolicyFileName is the policy file read from the vault directory.
const PolicyFileName = "mcp-policy.yaml"

// Policy actions
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// Errors
var (
	ErrPolicyNotFound       = errors.New("mcp: policy file not found")
	ErrPolicyInsecure       = errors.New("mcp: policy file has insecure permissions")
	ErrPolicySymlink        = errors.New("mcp: policy file is a symlink")
	ErrPolicyNotOwnedByUser = errors.New("mcp: policy file not owned by current user")
	ErrPolicyInvalid        = errors.New("mcp: invalid policy")
)

// Policy restricts which secret names MCP clients can see.
//
//	version: 1
//	default_action: deny
//	allowed_keys: ["API_*", "GITHUB_TOKEN"]
//	denied_keys: ["PROD_*"]
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	AllowedKeys   []string `yaml:"allowed_keys"`
	DeniedKeys    []string `yaml:"denied_keys"`
}

// DenyAll returns the policy used when a policy file exists but cannot be
// trusted.
func DenyAll() *Policy {
	return &Policy{Version: 1, DefaultAction: ActionDeny}
}

// LoadPolicy reads dir/mcp-policy.yaml. The file must be a regular file
// with mode 0600 owned by the current user. A missing default_action means
// deny.
func LoadPolicy(dir string) (*Policy, error) {
	f, err := openPolicyFile(filepath.Join(dir, PolicyFileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// fstat the open descriptor, not the path.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to stat policy file: %w", err)
	}
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm != 0600 {
			return nil, fmt.Errorf("%w: %o (expected 0600)", ErrPolicyInsecure, perm)
		}
	}
	if err := checkFileOwnership(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(io.LimitReader(f, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPolicyInvalid, err)
	}
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// Validate checks the version, the default action and every pattern.
func (p *Policy) Validate() error {
	if p.Version != 1 {
		return fmt.Errorf("%w: unsupported version %d", ErrPolicyInvalid, p.Version)
	}
	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("%w: default_action %q (must be %q or %q)", ErrPolicyInvalid, p.DefaultAction, ActionDeny, ActionAllow)
	}
	for _, pattern := range append(append([]string{}, p.AllowedKeys...), p.DeniedKeys...) {
		if err := cli.ValidatePattern(pattern); err != nil {
			return fmt.Errorf("%w: %v", ErrPolicyInvalid, err)
		}
	}
	return nil
}

// IsKeyAllowed evaluates denied_keys, then allowed_keys, then the default
// action. A nil policy allows everything.
func (p *Policy) IsKeyAllowed(name string) (allowed bool, reason string) {
	if p == nil {
		return true, ""
	}
	if ok, _ := cli.MatchAny(p.DeniedKeys, name); ok {
		return false, fmt.Sprintf("secret '%s' matches denied_keys", name)
	}
	if ok, _ := cli.MatchAny(p.AllowedKeys, name); ok {
		return true, ""
	}
	if p.DefaultAction == ActionAllow {
		return true, ""
	}
	return false, fmt.Sprintf("secret '%s' not in allowed_keys", name)
}

// Filter returns the names the policy allows, preserving order.
func (p *Policy) Filter(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if ok, _ := p.IsKeyAllowed(name); ok {
			out = append(out, name)
		}
	}
	return out
}
