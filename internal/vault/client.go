// Package vault fetches runtime secrets (data-provider API keys,
// database credentials) from HashiCorp Vault, with an in-memory
// fallback store for development setups that run without Vault.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"evo-trading-bot/config"
)

// ProviderCredentials is the secret payload for one market-data provider
type ProviderCredentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Provider  string `json:"provider"`
}

// DatabaseCredentials is the secret payload for the results database
type DatabaseCredentials struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu    sync.RWMutex
	cache map[string]map[string]interface{}
}

// NewClient creates a Vault client. With Vault disabled the client only
// serves values previously stored in its local cache.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	c := &Client{
		config: cfg,
		cache:  make(map[string]map[string]interface{}),
	}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client
	return c, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(_ context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// GetProviderCredentials reads the secret for one market-data provider
func (c *Client) GetProviderCredentials(ctx context.Context, provider string) (*ProviderCredentials, error) {
	data, err := c.readSecret(ctx, "providers/"+provider)
	if err != nil {
		return nil, err
	}
	return &ProviderCredentials{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
		Provider:  provider,
	}, nil
}

// GetDatabaseCredentials reads the results database credentials
func (c *Client) GetDatabaseCredentials(ctx context.Context) (*DatabaseCredentials, error) {
	data, err := c.readSecret(ctx, "database")
	if err != nil {
		return nil, err
	}
	return &DatabaseCredentials{
		User:     getString(data, "user"),
		Password: getString(data, "password"),
	}, nil
}

// StoreSecret writes a secret; used by provisioning tooling and tests
func (c *Client) StoreSecret(ctx context.Context, name string, data map[string]interface{}) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[name] = data
		c.mu.Unlock()
		return nil
	}

	payload := map[string]interface{}{"data": data}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(name), payload); err != nil {
		return fmt.Errorf("failed to store secret %q: %w", name, err)
	}

	c.mu.Lock()
	c.cache[name] = data
	c.mu.Unlock()
	return nil
}

// ClearCache drops all cached secrets
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]map[string]interface{})
	c.mu.Unlock()
}

func (c *Client) readSecret(ctx context.Context, name string) (map[string]interface{}, error) {
	c.mu.RLock()
	if cached, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("secret %q not found and vault is disabled", name)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %q: %w", name, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret %q not found", name)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("secret %q has invalid format", name)
	}

	c.mu.Lock()
	c.cache[name] = data
	c.mu.Unlock()
	return data, nil
}

// secretPath builds the KV v2 data path
func (c *Client) secretPath(name string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, name)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return ""
}

// NewMockClient creates a disabled client backed only by its cache
func NewMockClient() *Client {
	return &Client{
		config: config.VaultConfig{Enabled: false},
		cache:  make(map[string]map[string]interface{}),
	}
}
