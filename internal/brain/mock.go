package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/lain/internal/prompt"
)

// MockGateway provides deterministic local replies when no provider is configured.
type MockGateway struct{}

func NewMockGateway() *MockGateway { return &MockGateway{} }

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) Infer(ctx context.Context, p prompt.Prompt) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	base := strings.TrimSpace(p.User)
	if base == "" {
		return "Estou ouvindo.", nil
	}
	return fmt.Sprintf("Eu ouvi você: %s", base), nil
}
