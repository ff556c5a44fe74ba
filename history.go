// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// History holds the last response that went through a [*HistoryStage].
//
// The zero value is ready to use and safe for concurrent use.
type History struct {
	mu   sync.Mutex
	resp *http.Response
	body []byte
}

// Last returns a copy of the last recorded response, with a body that
// is readable from the beginning, or false when nothing was recorded.
func (h *History) Last() (*http.Response, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resp == nil {
		return nil, false
	}
	return snapshotResponse(h.resp, h.body), true
}

func (h *History) record(resp *http.Response, body []byte) {
	h.mu.Lock()
	h.resp, h.body = resp, body
	h.mu.Unlock()
}

func snapshotResponse(resp *http.Response, body []byte) *http.Response {
	clone := *resp
	clone.Header = resp.Header.Clone()
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.ContentLength = int64(len(body))
	return &clone
}

// HistoryStage records every response into a [*History].
//
// Transport errors leave the history untouched. The response body is
// read in full so both the caller and the history can consume it.
type HistoryStage struct {
	history *History
}

// NewHistoryStage returns a new [*HistoryStage] writing to history.
func NewHistoryStage(history *History) *HistoryStage {
	return &HistoryStage{history: history}
}

var _ Stage = &HistoryStage{}

// Kind implements [Stage].
func (*HistoryStage) Kind() StageKind {
	return KindHistory
}

// Handle implements [Stage].
func (s *HistoryStage) Handle(req *http.Request, next http.RoundTripper) (*http.Response, error) {
	resp, err := next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	s.history.record(resp, body)
	return snapshotResponse(resp, body), nil
}
