package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/keyp/pkg/audit"
	"github.com/forest6511/keyp/pkg/secrets"
	"github.com/forest6511/keyp/pkg/vault"
)

// ErrAccessDenied is returned when the policy hides the requested secret.
var ErrAccessDenied = errors.New("mcp: access denied by policy")

// SecretListInput is the input of secret_list.
type SecretListInput struct{}

// SecretListOutput is the output of secret_list.
type SecretListOutput struct {
	Names []string `json:"names"`
	Count int      `json:"count"`
}

// SecretSearchInput is the input of secret_search.
type SecretSearchInput struct {
	Query string `json:"query"`
}

// SecretSearchOutput is the output of secret_search.
type SecretSearchOutput struct {
	Query string   `json:"query"`
	Names []string `json:"names"`
	Count int      `json:"count"`
}

// SecretExistsInput is the input of secret_exists.
type SecretExistsInput struct {
	Name string `json:"name"`
}

// SecretExistsOutput is the output of secret_exists.
type SecretExistsOutput struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
}

// SecretGetMaskedInput is the input of secret_get_masked.
type SecretGetMaskedInput struct {
	Name string `json:"name"`
}

// SecretGetMaskedOutput is the output of secret_get_masked.
type SecretGetMaskedOutput struct {
	Name        string `json:"name"`
	MaskedValue string `json:"masked_value"`
	ValueLength int    `json:"value_length"`
}

func (s *Server) handleSecretList(_ context.Context, _ *mcp.CallToolRequest, _ SecretListInput) (*mcp.CallToolResult, SecretListOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.store()
	if err != nil {
		return nil, SecretListOutput{}, err
	}

	names := s.policy.Filter(store.List())
	_ = s.vault.Audit().LogSuccess(audit.OpSecretList, audit.SourceMCP, "")
	return nil, SecretListOutput{Names: names, Count: len(names)}, nil
}

func (s *Server) handleSecretSearch(_ context.Context, _ *mcp.CallToolRequest, input SecretSearchInput) (*mcp.CallToolResult, SecretSearchOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SecretSearchOutput{}, errors.New("query is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.store()
	if err != nil {
		return nil, SecretSearchOutput{}, err
	}

	names := s.policy.Filter(store.Search(input.Query))
	_ = s.vault.Audit().LogSuccess(audit.OpSecretSearch, audit.SourceMCP, "")
	return nil, SecretSearchOutput{Query: input.Query, Names: names, Count: len(names)}, nil
}

func (s *Server) handleSecretExists(_ context.Context, _ *mcp.CallToolRequest, input SecretExistsInput) (*mcp.CallToolResult, SecretExistsOutput, error) {
	if input.Name == "" {
		return nil, SecretExistsOutput{}, errors.New("name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.store()
	if err != nil {
		return nil, SecretExistsOutput{}, err
	}
	if err := s.authorize(audit.OpSecretExists, input.Name); err != nil {
		return nil, SecretExistsOutput{}, err
	}

	_ = s.vault.Audit().LogSuccess(audit.OpSecretExists, audit.SourceMCP, input.Name)
	return nil, SecretExistsOutput{Name: input.Name, Exists: store.Has(input.Name)}, nil
}

func (s *Server) handleSecretGetMasked(_ context.Context, _ *mcp.CallToolRequest, input SecretGetMaskedInput) (*mcp.CallToolResult, SecretGetMaskedOutput, error) {
	if input.Name == "" {
		return nil, SecretGetMaskedOutput{}, errors.New("name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.store()
	if err != nil {
		return nil, SecretGetMaskedOutput{}, err
	}
	if err := s.authorize(audit.OpSecretGetMasked, input.Name); err != nil {
		return nil, SecretGetMaskedOutput{}, err
	}

	value, ok := store.Get(input.Name)
	if !ok {
		_ = s.vault.Audit().LogError(audit.OpSecretGetMasked, audit.SourceMCP, input.Name, "NOT_FOUND", "secret not found")
		return nil, SecretGetMaskedOutput{}, fmt.Errorf("%w: %q", secrets.ErrSecretNotFound, input.Name)
	}

	_ = s.vault.Audit().LogSuccess(audit.OpSecretGetMasked, audit.SourceMCP, input.Name)
	return nil, SecretGetMaskedOutput{
		Name:        input.Name,
		MaskedValue: maskValue(value),
		ValueLength: utf8.RuneCountInString(value),
	}, nil
}

// store returns the live store. Callers hold s.mu.
func (s *Server) store() (*secrets.Store, error) {
	store := s.vault.Data()
	if store == nil {
		return nil, vault.ErrVaultLocked
	}
	return store, nil
}

func (s *Server) authorize(op, name string) error {
	if ok, reason := s.policy.IsKeyAllowed(name); !ok {
		_ = s.vault.Audit().LogDenied(op, audit.SourceMCP, name, reason)
		s.log.Debug().Str("op", op).Str("name", name).Msg("denied by policy")
		return fmt.Errorf("%w: %q", ErrAccessDenied, name)
	}
	return nil
}

// maskValue hides all but the tail of a value:
//
//	1-4 characters  all masked   ****
//	5-8 characters  last 2 shown ******XY
//	9+ characters   last 4 shown ****WXYZ
func maskValue(value string) string {
	r := []rune(value)
	n := len(r)

	switch {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return strings.Repeat("*", n-2) + string(r[n-2:])
	default:
		return strings.Repeat("*", n-4) + string(r[n-4:])
	}
}
