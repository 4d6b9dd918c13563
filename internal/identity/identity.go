// Package identity resolves the access token authorized to act on a given
// platform account. Tokens live in SSM Parameter Store (SecureString) so
// rotation never needs a redeploy; a static in-memory provider backs tests
// and single-tenant setups.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// Provider supplies the access token for a platform account.
type Provider interface {
	// Token returns the access token for accountID, or an error when the
	// account is unknown or unauthorized.
	Token(ctx context.Context, accountID string) (string, error)
}

// ssmAPI is the subset of the SSM client the provider uses.
type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMProvider reads tokens from Parameter Store under a fixed path prefix
// (<prefix><accountID>), caching each token for the process lifetime.
type SSMProvider struct {
	client ssmAPI
	prefix string

	mu    sync.Mutex
	cache map[string]string
}

// Compile-time interface check.
var _ Provider = (*SSMProvider)(nil)

// NewSSMProvider creates a provider reading from the given path prefix,
// e.g. "/crosspost/tokens/".
func NewSSMProvider(client ssmAPI, prefix string) *SSMProvider {
	return &SSMProvider{
		client: client,
		prefix: prefix,
		cache:  make(map[string]string),
	}
}

func (p *SSMProvider) Token(ctx context.Context, accountID string) (string, error) {
	p.mu.Lock()
	if tok, ok := p.cache[accountID]; ok {
		p.mu.Unlock()
		return tok, nil
	}
	p.mu.Unlock()

	path := p.prefix + accountID
	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &path,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("unauthorized: no token for account %s: %w", accountID, err)
	}
	token := aws.ToString(out.Parameter.Value)
	if token == "" {
		return "", fmt.Errorf("unauthorized: empty token parameter for account %s", accountID)
	}

	p.mu.Lock()
	p.cache[accountID] = token
	p.mu.Unlock()

	log.Debug().Str("accountId", accountID).Str("param", path).Msg("Access token loaded from SSM")
	return token, nil
}

// StaticProvider serves tokens from a fixed map.
type StaticProvider map[string]string

// Compile-time interface check.
var _ Provider = (StaticProvider)(nil)

func (s StaticProvider) Token(_ context.Context, accountID string) (string, error) {
	tok, ok := s[accountID]
	if !ok || tok == "" {
		return "", fmt.Errorf("unauthorized: no token for account %s", accountID)
	}
	return tok, nil
}
