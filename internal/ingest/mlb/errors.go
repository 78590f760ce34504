package mlb

import (
	"errors"
	"fmt"
)

// ErrNoGames is returned when a schedule query matches no games.
var ErrNoGames = errors.New("schedule contains no games")

// TransportError reports a request that did not complete with a 200 response.
// StatusCode is zero when the request never produced a response.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("response status code %d in get request to %q", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("get request to %q failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the request may succeed.
func (e *TransportError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// DataShapeError reports a well-formed JSON response that lacks an expected
// top-level key.
type DataShapeError struct {
	URL string
	Key string
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("response data does not contain %q in get request to %q", e.Key, e.URL)
}
