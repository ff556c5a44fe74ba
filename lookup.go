// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"context"
	"io"
	"net/http"
)

// Query is the input of [*Client.Lookup].
type Query struct {
	// IPs contains the addresses to look up.
	IPs []string

	// Format is the response format. Empty means [DefaultFormat].
	Format string
}

// Lookup returns the raw response body for ips in the given format.
//
// Validation happens before dispatch: an invalid query fails with
// [ErrInvalidInput] and never reaches the network. Responses with
// status 400 or above fail with [*HTTPStatusError].
func (c *Client) Lookup(ctx context.Context, ips []string, format string) (string, error) {
	pipeline := Compose3(
		prepareURIFunc{},
		getFunc{client: c.HTTPClient()},
		readBodyFunc{},
	)
	return pipeline.Call(ctx, Query{IPs: ips, Format: format})
}

// LookupOne is like [*Client.Lookup] for a single address.
func (c *Client) LookupOne(ctx context.Context, ip string, format string) (string, error) {
	return c.Lookup(ctx, []string{ip}, format)
}

type prepareURIFunc struct{}

var _ Func[Query, string] = prepareURIFunc{}

// Call implements [Func].
func (prepareURIFunc) Call(ctx context.Context, query Query) (string, error) {
	return PrepareURI(query.IPs, query.Format)
}

// getFunc dispatches a GET for a URI through a compiled pipeline.
type getFunc struct {
	client *CompiledClient
}

var _ Func[string, *http.Response] = getFunc{}

// Call implements [Func].
func (f getFunc) Call(ctx context.Context, uri string) (*http.Response, error) {
	return f.client.Get(ctx, uri)
}

// readBodyFunc reads the whole response body as a string.
//
// It owns the response: the body is closed on every path.
type readBodyFunc struct{}

var _ Func[*http.Response, string] = readBodyFunc{}

// Call implements [Func].
func (readBodyFunc) Call(ctx context.Context, resp *http.Response) (string, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
