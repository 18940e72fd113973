package secrets

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/smefinder/smefinder/pkg/errors"
	"github.com/smefinder/smefinder/pkg/logging"
)

// cacheTTL bounds how long a fetched secret is reused
const cacheTTL = 5 * time.Minute

// smAPI is the subset of the Secrets Manager client used
type smAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Manager fetches secrets from AWS Secrets Manager with a short TTL cache
// so hot paths do not hit the service on every request
type Manager struct {
	client smAPI
	cache  map[string]cacheEntry
	mu     sync.RWMutex
	now    func() time.Time
	logger *logging.Logger
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewManager creates a secrets manager over the given client
func NewManager(client *secretsmanager.Client) *Manager {
	return &Manager{
		client: client,
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
		logger: logging.GetLogger().WithComponent("secrets"),
	}
}

// GetSecret retrieves a secret string by name
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	if entry, ok := m.cache[name]; ok && m.now().Before(entry.expiresAt) {
		m.mu.RUnlock()
		return entry.value, nil
	}
	m.mu.RUnlock()

	output, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", errors.NewExternalError("secretsmanager", "Failed to fetch secret").
			WithDetail("secret_name", name).
			WithCause(err)
	}
	if output.SecretString == nil {
		return "", errors.NewNotFoundError("secret " + name)
	}
	value := *output.SecretString

	m.mu.Lock()
	m.cache[name] = cacheEntry{value: value, expiresAt: m.now().Add(cacheTTL)}
	m.mu.Unlock()

	m.logger.Debug("Secret fetched", "name", name)
	return value, nil
}

// GetSecretKey retrieves one key from a JSON-encoded secret
func (m *Manager) GetSecretKey(ctx context.Context, name, key string) (string, error) {
	raw, err := m.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", errors.NewInternalError("Secret is not a JSON object").
			WithDetail("secret_name", name).
			WithCause(err)
	}
	value, ok := fields[key]
	if !ok {
		return "", errors.NewNotFoundError("secret key " + key)
	}
	return value, nil
}

// Invalidate drops a cached secret so the next read refetches it
func (m *Manager) Invalidate(name string) {
	m.mu.Lock()
	delete(m.cache, name)
	m.mu.Unlock()
}
