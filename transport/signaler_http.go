// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Compile-time interface check.
var _ Signaler = (*HTTPSignaler)(nil)

// HTTPSignaler talks to the PeerSync rendezvous server. The server is
// a dumb mailbox: it holds claimed names and undelivered SDP blobs for
// a few minutes and knows nothing about the transfer protocol. All
// state of value crosses the data channel, never the rendezvous.
//
// API surface:
//
//	POST   /v1/names            {"name": n}        201, or 409 when taken
//	DELETE /v1/names/{name}                        204
//	POST   /v1/offers           SignalMessage+target
//	POST   /v1/answers          SignalMessage+target
//	GET    /v1/offers?target=n  [SignalMessage]    (drained on read)
//	GET    /v1/answers?target=n [SignalMessage]
type HTTPSignaler struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSignaler creates a signaler against the rendezvous server at
// baseURL (scheme and host, no trailing slash required).
func NewHTTPSignaler(baseURL string) *HTTPSignaler {
	return &HTTPSignaler{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// signalEnvelope is the POST body for offers and answers.
type signalEnvelope struct {
	From   string `json:"from"`
	Target string `json:"target"`
	SDP    string `json:"sdp"`
}

func (s *HTTPSignaler) Register(ctx context.Context, name string) error {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return err
	}
	response, err := s.do(ctx, http.MethodPost, "/v1/names", body)
	if err != nil {
		return err
	}
	defer drainAndClose(response)

	switch response.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusConflict:
		return ErrNameTaken
	default:
		return fmt.Errorf("registering name: rendezvous returned %s", response.Status)
	}
}

func (s *HTTPSignaler) Unregister(ctx context.Context, name string) error {
	response, err := s.do(ctx, http.MethodDelete, "/v1/names/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	defer drainAndClose(response)

	if response.StatusCode >= 300 && response.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unregistering name: rendezvous returned %s", response.Status)
	}
	return nil
}

func (s *HTTPSignaler) PublishOffer(ctx context.Context, from, target, sdp string) error {
	return s.publish(ctx, "/v1/offers", from, target, sdp)
}

func (s *HTTPSignaler) PublishAnswer(ctx context.Context, from, target, sdp string) error {
	return s.publish(ctx, "/v1/answers", from, target, sdp)
}

func (s *HTTPSignaler) PollOffers(ctx context.Context, name string) ([]SignalMessage, error) {
	return s.poll(ctx, "/v1/offers", name)
}

func (s *HTTPSignaler) PollAnswers(ctx context.Context, name string) ([]SignalMessage, error) {
	return s.poll(ctx, "/v1/answers", name)
}

func (s *HTTPSignaler) publish(ctx context.Context, path, from, target, sdp string) error {
	body, err := json.Marshal(signalEnvelope{From: from, Target: target, SDP: sdp})
	if err != nil {
		return err
	}
	response, err := s.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer drainAndClose(response)

	if response.StatusCode >= 300 {
		return fmt.Errorf("publishing signal: rendezvous returned %s", response.Status)
	}
	return nil
}

func (s *HTTPSignaler) poll(ctx context.Context, path, name string) ([]SignalMessage, error) {
	response, err := s.do(ctx, http.MethodGet, path+"?target="+url.QueryEscape(name), nil)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(response)

	if response.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if response.StatusCode >= 300 {
		return nil, fmt.Errorf("polling signals: rendezvous returned %s", response.Status)
	}

	var messages []SignalMessage
	if err := json.NewDecoder(response.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decoding signal list: %w", err)
	}
	return messages, nil
}

func (s *HTTPSignaler) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	response, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("rendezvous request %s %s: %w", method, path, err)
	}
	return response, nil
}

// drainAndClose discards the remaining body so the connection can be
// reused by the HTTP client's pool.
func drainAndClose(response *http.Response) {
	io.Copy(io.Discard, response.Body)
	response.Body.Close()
}
