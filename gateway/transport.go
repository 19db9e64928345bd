package gateway

import (
	"encoding/base64"
	"net/http"
)

// authTransport injects gateway credentials into every outgoing request.
// The credential function is consulted on each round trip rather than at
// construction time, which is what makes credential rotation take effect
// without rebuilding the client.
type authTransport struct {
	base        http.RoundTripper
	credentials func() http.Header
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, values := range t.credentials() {
		for _, value := range values {
			req.Header.Set(key, value)
		}
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func basicToken(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
