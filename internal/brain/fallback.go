package brain

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/lain/internal/prompt"
)

// FallbackGateway attempts a primary gateway first and falls back on error.
type FallbackGateway struct {
	primary  Gateway
	fallback Gateway
}

func NewFallbackGateway(primary Gateway, fallback Gateway) *FallbackGateway {
	return &FallbackGateway{primary: primary, fallback: fallback}
}

// Primary returns the preferred gateway used before fallback.
func (g *FallbackGateway) Primary() Gateway {
	return g.primary
}

// Secondary returns the fallback gateway.
func (g *FallbackGateway) Secondary() Gateway {
	return g.fallback
}

func (g *FallbackGateway) Name() string {
	switch {
	case g.primary != nil && g.fallback != nil:
		return g.primary.Name() + "+" + g.fallback.Name()
	case g.primary != nil:
		return g.primary.Name()
	case g.fallback != nil:
		return g.fallback.Name()
	default:
		return "none"
	}
}

func (g *FallbackGateway) Infer(ctx context.Context, p prompt.Prompt) (string, error) {
	if g.primary == nil {
		if g.fallback != nil {
			return g.fallback.Infer(ctx, p)
		}
		return "", fmt.Errorf("fallback gateway misconfigured")
	}

	reply, err := g.primary.Infer(ctx, p)
	if err == nil {
		return reply, nil
	}
	if errors.Is(err, context.Canceled) || g.fallback == nil {
		return "", err
	}

	log.WithFields(log.Fields{
		"primary":  g.primary.Name(),
		"fallback": g.fallback.Name(),
		"err":      err,
	}).Warn("primary brain failed; trying fallback")

	reply, fallbackErr := g.fallback.Infer(ctx, p)
	if fallbackErr != nil {
		return "", fmt.Errorf("primary gateway error: %w; fallback gateway error: %v", err, fallbackErr)
	}
	return reply, nil
}
