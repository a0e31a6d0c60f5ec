package client

import (
	"context"
)

// GroundingClient answers an instruction about a screenshot with free text.
// Images travel base64 encoded.
type GroundingClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	Ground(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
