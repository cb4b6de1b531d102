package pipeline

import (
	"context"
	"errors"

	"github.com/contentmill/contentmill/internal/engine"
)

// Unconfigured stands in when no pipeline URL is configured. Every
// Produce fails, so generation endpoints return an upstream error
// instead of crashing the server.
type Unconfigured struct{}

var _ engine.Pipeline = Unconfigured{}

func (Unconfigured) Produce(context.Context, map[string]any) (*engine.Artifact, error) {
	return nil, errors.New("no pipeline configured: set pipeline.url in contentmill.yaml or CONTENTMILL_PIPELINE_URL")
}
