// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package osmand delivers reports to a Traccar server using the OsmAnd HTTP protocol.
package osmand

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/wneessen/traccar-agent/internal/http"
	"github.com/wneessen/traccar-agent/internal/location"
	"github.com/wneessen/traccar-agent/internal/report"
)

const name = "osmand"

// ErrUnexpectedStatus is returned for non-2xx responses of the server.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// Transport sends each report as a single HTTP GET request.
type Transport struct {
	client   *http.Client
	endpoint string
}

// New returns a Transport for the given server URL, e.g. "http://demo.traccar.org:5055".
func New(client *http.Client, endpoint string) (*Transport, error) {
	if client == nil {
		return nil, errors.New("HTTP client is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", endpoint, err)
	}
	return &Transport{
		client:   client,
		endpoint: endpoint,
	}, nil
}

func (t *Transport) Name() string {
	return name
}

// Send delivers r. The credential, if any, is sent as HTTP Basic authorization.
func (t *Transport) Send(ctx context.Context, r report.Report) error {
	var headers map[string]string
	if r.Credential != "" {
		headers = map[string]string{"Authorization": AuthHeader(r.Credential)}
	}

	status, err := t.client.Get(ctx, t.endpoint, Query(r), headers)
	if err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
	}
	return nil
}

// AuthHeader returns the Authorization header value for credential.
func AuthHeader(credential string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credential))
}

// Query encodes r as OsmAnd protocol query parameters. Unknown course and battery values
// are omitted.
func Query(r report.Report) url.Values {
	query := url.Values{}
	query.Set("id", r.DeviceID)
	query.Set("timestamp", strconv.FormatInt(r.Timestamp.Unix(), 10))
	query.Set("lat", formatFloat(r.Latitude))
	query.Set("lon", formatFloat(r.Longitude))
	query.Set("speed", formatFloat(r.Speed*location.KnotsPerMeterPerSecond))
	query.Set("altitude", formatFloat(r.Altitude))
	query.Set("accuracy", formatFloat(r.Accuracy))
	if r.Course.IsSet() {
		query.Set("bearing", formatFloat(r.Course.Value()))
	}
	if r.Battery.IsSet() {
		query.Set("batt", formatFloat(r.Battery.Value()))
	}
	return query
}

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', -1, 64)
}
