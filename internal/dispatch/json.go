// ABOUTME: Convenience wrappers over Dispatch for JSON APIs
// ABOUTME: DecodeJSON reads and closes a response body regardless of status

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxDecodeBytes caps how much of a response DecodeJSON will read.
const maxDecodeBytes = 4 << 20

// ErrResponseTooLarge is returned by DecodeJSON for bodies over the read cap.
var ErrResponseTooLarge = errors.New("response too large")

// Get dispatches a GET request.
func (d *Dispatcher) Get(ctx context.Context, path string) (*http.Response, error) {
	return d.Dispatch(ctx, path, Options{Method: http.MethodGet})
}

// PostJSON dispatches a POST whose body is body encoded as JSON.
func (d *Dispatcher) PostJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	return d.Dispatch(ctx, path, Options{Method: http.MethodPost, Body: body})
}

// DecodeJSON decodes resp's body into v and closes it. An empty body leaves
// v untouched. The status code is not inspected.
func DecodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDecodeBytes+1))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if len(data) > maxDecodeBytes {
		return fmt.Errorf("%w: status %d, over %d bytes", ErrResponseTooLarge, resp.StatusCode, maxDecodeBytes)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
