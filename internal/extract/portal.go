// Distrikt - District Performance Snapshot Storage and Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/distrikt

package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxExtractBytes bounds how much of an upstream response we will read.
// District performance extracts are small; anything larger is a portal fault.
const maxExtractBytes = 16 << 20

// Ensure PortalSource implements Source
var _ Source = (*PortalSource)(nil)

// PortalSource fetches raw district performance extracts from the upstream
// portal over HTTP. It is normally wrapped in a BreakerSource.
type PortalSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewPortalSource creates a portal client.
//
// Parameters:
//   - baseURL: portal base URL (e.g. https://portal.example.org)
//   - apiKey: optional bearer token; sent only when non-empty
func NewPortalSource(baseURL, apiKey string) *PortalSource {
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &PortalSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch retrieves one district's raw performance extract for the given date.
// The payload is returned as-is; normalization happens in the builder.
func (p *PortalSource) Fetch(ctx context.Context, districtID, date string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/api/districts/%s/performance?date=%s",
		p.baseURL, url.PathEscape(districtID), url.QueryEscape(date))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("portal request for district %s: %w", districtID, err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal fetch for district %s: %w", districtID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("portal returned status %d for district %s: %s",
			resp.StatusCode, districtID, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxExtractBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading portal response for district %s: %w", districtID, err)
	}
	if len(data) > maxExtractBytes {
		return nil, fmt.Errorf("portal response for district %s exceeds %d bytes", districtID, maxExtractBytes)
	}
	return data, nil
}
