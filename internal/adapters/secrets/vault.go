package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for the HashiCorp Vault provider
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Authentication method: "token" or "approle"
	AuthMethod string
	Token      string
	RoleID     string
	SecretID   string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV secrets engine mount path (default: "secret")
	MountPath string

	// KV version: "v1" or "v2" (default: "v2")
	KVVersion string

	TLSSkipVerify bool
}

// DefaultVaultConfig returns default configuration for Vault
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:    address,
		AuthMethod: "token",
		MountPath:  "secret",
		KVVersion:  "v2",
	}
}

// VaultProvider reads secrets from a Vault KV engine
type VaultProvider struct {
	client *vault.Client
	config *VaultConfig
	logger *zap.Logger
}

// NewVaultProvider creates an authenticated Vault provider
func NewVaultProvider(ctx context.Context, cfg *VaultConfig, logger *zap.Logger) (*VaultProvider, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	logger.Info("Vault secret provider initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.String("mount_path", cfg.MountPath),
		zap.String("kv_version", cfg.KVVersion),
	)

	return &VaultProvider{client: client, config: cfg, logger: logger}, nil
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg *VaultConfig) error {
	switch cfg.AuthMethod {
	case "token", "":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("AppRole login failed: %w", err)
		}
		if resp.Auth == nil {
			return fmt.Errorf("AppRole login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// GetSecret reads the "value" key of the secret at path
func (p *VaultProvider) GetSecret(ctx context.Context, path string) (*Secret, error) {
	fullPath := fmt.Sprintf("%s/%s", p.config.MountPath, path)
	if p.config.KVVersion == "v2" {
		fullPath = fmt.Sprintf("%s/data/%s", p.config.MountPath, path)
	}

	startTime := time.Now()
	secret, err := p.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		p.logger.Error("Failed to retrieve secret from Vault",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	p.logger.Info("Secret retrieved from Vault",
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(startTime)),
	)

	secretData := secret.Data
	version := "1"
	var createdTime string

	if p.config.KVVersion == "v2" {
		// KV v2 wraps data in "data" field
		data, ok := secret.Data["data"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid secret format from Vault")
		}
		secretData = data

		if metadata, ok := secret.Data["metadata"].(map[string]interface{}); ok {
			if v, ok := metadata["version"].(json.Number); ok {
				version = v.String()
			}
			if ct, ok := metadata["created_time"].(string); ok {
				createdTime = ct
			}
		}
	}

	value, _ := secretData["value"].(string)
	if value == "" {
		return nil, fmt.Errorf("secret value is empty or not found at %s", path)
	}

	result := &Secret{
		Value:     value,
		Version:   version,
		CreatedAt: createdTime,
		Metadata:  make(map[string]string),
	}
	for k, v := range secretData {
		if str, ok := v.(string); ok && k != "value" {
			result.Metadata[k] = str
		}
	}
	return result, nil
}
