package internal

import (
	"context"
)

type Request struct {
	// The API method called
	Method MethodKind
	// Context is the context of the request
	Context context.Context
	// The request struct for this method
	Request any
	// Used to wait for this request to complete
	ReadyCh chan struct{}
	// The error to be returned to the caller
	Err error
}
