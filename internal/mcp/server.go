// Package mcp serves a read-only view of an unlocked vault over the Model
// Context Protocol on stdio. Clients can list, search and probe secret
// names and see masked values; plaintext values never leave the process.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/keyp/internal/logger"
	"github.com/forest6511/keyp/pkg/audit"
	"github.com/forest6511/keyp/pkg/vault"
)

// PasswordEnv holds the master password for a non-interactive server. It is
// unset as soon as it has been read.
const PasswordEnv = "KEYP_PASSWORD"

// ErrNoPassword is returned when neither the options nor the environment
// provide a master password.
var ErrNoPassword = errors.New("mcp: no password provided: set " + PasswordEnv)

// Server is an MCP server over one unlocked vault session.
type Server struct {
	server *mcp.Server
	mu     sync.Mutex // guards vault
	vault  *vault.Vault
	policy *Policy
	log    *logger.Logger
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	// VaultPath is the vault file. Required.
	VaultPath string

	// Password is the master password. When empty it is read from
	// KEYP_PASSWORD.
	Password string

	// Version is reported to clients.
	Version string

	Logger *logger.Logger
}

// NewServer unlocks the vault and registers the tools. The policy file is
// read from the vault's directory; a file that exists but fails its checks
// puts the server in deny-all mode.
func NewServer(opts *ServerOptions) (*Server, error) {
	if opts == nil || opts.VaultPath == "" {
		return nil, errors.New("mcp: vault path is required")
	}
	base := opts.Logger
	if base == nil {
		base = logger.Nop()
	}
	log := base.Component("mcp")

	dir := filepath.Dir(opts.VaultPath)
	policy, err := LoadPolicy(dir)
	switch {
	case errors.Is(err, ErrPolicyNotFound):
		policy = nil
	case err != nil:
		log.Warn().Err(err).Msg("failed to load MCP policy, denying all secrets")
		policy = DenyAll()
	}

	password := opts.Password
	if password == "" {
		password = os.Getenv(PasswordEnv)
		os.Unsetenv(PasswordEnv)
	}
	if password == "" {
		return nil, ErrNoPassword
	}

	v := vault.New(opts.VaultPath,
		vault.WithLogger(base),
		vault.WithAuditSource(audit.SourceMCP),
	)
	if err := v.Unlock(password); err != nil {
		return nil, fmt.Errorf("mcp: failed to unlock vault: %w", err)
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: "keyp", Version: version}, nil),
		vault:  v,
		policy: policy,
		log:    log,
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "secret_list",
		Description: "List the names of all secrets in the vault. Does NOT return secret values.",
	}, s.handleSecretList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "secret_search",
		Description: "List secret names containing the query, ignoring case. Does NOT return secret values.",
	}, s.handleSecretSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "secret_exists",
		Description: "Check whether a secret with the given name exists. Does NOT return the secret value.",
	}, s.handleSecretExists)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "secret_get_masked",
		Description: "Get a masked version of a secret value (e.g. '****WXYZ') to verify its format without exposing it.",
	}, s.handleSecretGetMasked)
}

// Run serves on stdio until ctx is cancelled or the client disconnects, then
// locks the vault.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()
	s.log.Debug().Msg("serving on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close locks the vault.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.vault.IsUnlocked() {
		return nil
	}
	s.vault.Lock()
	return s.vault.Audit().LogSuccess(audit.OpVaultLock, audit.SourceMCP, "")
}
