package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// LocalProvider reads secrets from files under a base directory.
// WARNING: This is for development only. Use AWS Secrets Manager or Vault in production.
type LocalProvider struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalProvider creates a filesystem provider rooted at basePath
func NewLocalProvider(basePath string, logger *zap.Logger) *LocalProvider {
	return &LocalProvider{basePath: basePath, logger: logger}
}

// GetSecret reads basePath/secretPath. A JSON file with a "value" key
// carries metadata; anything else is the raw secret.
func (p *LocalProvider) GetSecret(_ context.Context, secretPath string) (*Secret, error) {
	filePath := filepath.Join(p.basePath, secretPath)

	p.logger.Debug("Reading secret from filesystem", zap.String("path", secretPath))

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, secretPath)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var secretData struct {
		Value     string            `json:"value"`
		Tags      map[string]string `json:"tags"`
		CreatedAt string            `json:"created_at"`
	}
	if err := json.Unmarshal(data, &secretData); err == nil && secretData.Value != "" {
		return &Secret{
			Value:     secretData.Value,
			Version:   "v1",
			Metadata:  secretData.Tags,
			CreatedAt: secretData.CreatedAt,
		}, nil
	}

	return &Secret{
		Value:   strings.TrimSpace(string(data)),
		Version: "v1",
	}, nil
}
