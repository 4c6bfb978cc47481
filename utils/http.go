// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound calls (SPARQL queries can be slow on
// large graphs, hence the generous timeout).
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
