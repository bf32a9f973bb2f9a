// Package opensky fetches and decodes the OpenSky /states/all feed.
package opensky

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rewired-gh/skywatch/internal/fetch"
	"github.com/rewired-gh/skywatch/internal/logger"
	"github.com/rewired-gh/skywatch/internal/models"
)

// Positional indices in a state vector.
const (
	idxIdentifier   = 0
	idxCallsign     = 1
	idxPositionTime = 3
	idxLongitude    = 5
	idxLatitude     = 6
	idxAltitude     = 7
	idxVelocity     = 9
	idxHeading      = 10
)

// Credentials enable authenticated access with higher rate limits.
type Credentials struct {
	Username string
	Password string
}

// Client provides access to the live-state feed.
type Client struct {
	url   string
	creds Credentials
	http  *fetch.Client
}

// NewClient creates a new live-state client. Empty credentials mean anonymous access.
func NewClient(url string, creds Credentials, httpClient *fetch.Client) *Client {
	return &Client{url: url, creds: creds, http: httpClient}
}

// Authenticated reports whether requests carry credentials.
func (c *Client) Authenticated() bool {
	return c.creds.Username != ""
}

// FetchStates retrieves all current aircraft states. Transport and status
// failures, or a body that is not a JSON object, are errors; a missing or
// malformed states list yields zero states.
func (c *Client) FetchStates(ctx context.Context) ([]models.LiveState, error) {
	body, err := c.http.Get(ctx, c.url, http.Header{"Accept": {"application/json"}}, c.creds.Username, c.creds.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch states: %w", err)
	}

	states, err := DecodeStates(body)
	if err != nil {
		return nil, err
	}
	logger.Info("Live feed reports %d aircraft (authenticated: %v)", len(states), c.Authenticated())
	return states, nil
}

type statesResponse struct {
	Time   int64           `json:"time"`
	States json.RawMessage `json:"states"`
}

// DecodeStates parses a /states/all response body.
func DecodeStates(body []byte) ([]models.LiveState, error) {
	var resp statesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode states: %w", err)
	}

	var rows []json.RawMessage
	if len(resp.States) == 0 || json.Unmarshal(resp.States, &rows) != nil {
		logger.Warn("Live feed returned no usable states list")
		return []models.LiveState{}, nil
	}

	states := make([]models.LiveState, 0, len(rows))
	skipped := 0
	for _, raw := range rows {
		s, ok := decodeRow(raw)
		if !ok {
			skipped++
			continue
		}
		states = append(states, s)
	}
	if skipped > 0 {
		logger.Debug("Skipped %d malformed state vectors", skipped)
	}
	return states, nil
}

func decodeRow(raw json.RawMessage) (models.LiveState, bool) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) <= idxIdentifier {
		return models.LiveState{}, false
	}

	var id string
	if err := json.Unmarshal(fields[idxIdentifier], &id); err != nil || id == "" {
		return models.LiveState{}, false
	}

	s := models.LiveState{
		Identifier: id,
		Longitude:  floatAt(fields, idxLongitude),
		Latitude:   floatAt(fields, idxLatitude),
		Altitude:   floatAt(fields, idxAltitude),
		Velocity:   floatAt(fields, idxVelocity),
		Heading:    floatAt(fields, idxHeading),
	}
	if len(fields) > idxCallsign {
		_ = json.Unmarshal(fields[idxCallsign], &s.Callsign)
	}
	if t := floatAt(fields, idxPositionTime); t != nil {
		v := int64(*t)
		s.PositionTime = &v
	}
	return s, true
}

// floatAt returns nil for absent, null, or non-numeric fields.
func floatAt(fields []json.RawMessage, i int) *float64 {
	if i >= len(fields) {
		return nil
	}
	var v *float64
	if err := json.Unmarshal(fields[i], &v); err != nil {
		return nil
	}
	return v
}
