package gcp

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Secret ids the stages read from Secret Manager.
const (
	SecretClaudeAPIKey        = "claude_api_key"
	SecretDecodeSystemPrompt  = "decode_system_prompt"
	SecretDecodeUserPrompt    = "decode_user_prompt"
	SecretChatGPTAPIKey       = "chatgpt_api_key"
	SecretChatGPTSystemPrompt = "chatgpt_system_prompt"
	SecretGmailServiceAccount = "gmail_service_account"
)

// SecretClient reads secret payloads for one project.
type SecretClient struct {
	client    *secretmanager.Client
	projectID string
}

func NewSecretClient(ctx context.Context, projectID string) (*SecretClient, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a secret client")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &SecretClient{client: client, projectID: projectID}, nil
}

// GetSecret returns the payload of a secret version. An empty version means "latest".
func (c *SecretClient) GetSecret(ctx context.Context, id, version string) (string, error) {
	if version == "" {
		version = "latest"
	}
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", c.projectID, id, version)
	resp, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", id, err)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (c *SecretClient) Close() error {
	return c.client.Close()
}
