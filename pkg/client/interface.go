package client

import "context"

// VisionClient is the transport to a multimodal model server
type VisionClient interface {
	// Ping reports whether the server is reachable
	Ping(ctx context.Context) error
	// Query sends one prompt with one base64 JPEG and returns the raw model text
	Query(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
