// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// FactHTTPClient is shared by every fact provider. Providers must degrade to a
// soft-fail result when it times out, never block the evaluation loop.
var FactHTTPClient = &http.Client{
	Timeout: 4 * time.Second,
}

// NewModelHTTPClient returns the client handed to the LLM SDK.
func NewModelHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
