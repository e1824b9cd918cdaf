// Package model provides interfaces for working with LLMs.
package model

import "context"

// Model is the interface for all language models.
//
// Error handling uses a dual-layer approach:
//
//  1. Function-level errors (returned as `error`): system-level failures
//     that prevent communication, e.g. nil request or network issues.
//  2. Response-level errors (Response.Error field): API-level errors
//     returned by the model service, delivered through the response channel.
//
// Usage pattern:
//
//	responseChan, err := model.GenerateContent(ctx, request)
//	if err != nil {
//	    return fmt.Errorf("failed to generate content: %w", err)
//	}
//	for response := range responseChan {
//	    if response.Error != nil {
//	        return fmt.Errorf("API error: %s", response.Error.Message)
//	    }
//	    // Process successful response...
//	}
type Model interface {
	// GenerateContent generates content from the given request.
	// Returns a channel of Response objects for streaming results, and an
	// error for system-level failures that prevent communication.
	GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error)

	// Info returns basic information about the model.
	Info() Info
}

// Info contains basic information about a Model.
type Info struct {
	Name string
}
