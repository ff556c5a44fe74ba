// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/bassosimone/slogstub"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var (
		mu      sync.Mutex
		records []slog.Record
	)
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			return nil
		},
	}
	return slog.New(handler), &records
}

// recordMessages returns the messages of the given records in order.
func recordMessages(records []slog.Record) []string {
	var messages []string
	for _, record := range records {
		messages = append(messages, record.Message)
	}
	return messages
}

// recordAttr returns the value of the named attribute of record.
func recordAttr(record slog.Record, name string) (slog.Value, bool) {
	var (
		value slog.Value
		found bool
	)
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == name {
			value, found = attr.Value, true
			return false
		}
		return true
	})
	return value, found
}

// newTestResponse returns a response with the given status code and body.
func newTestResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		Status:        strconv.Itoa(statusCode) + " " + http.StatusText(statusCode),
		StatusCode:    statusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// recordingTransport is an [http.RoundTripper] recording the requests it
// receives and answering using respond.
type recordingTransport struct {
	mu       sync.Mutex
	requests []*http.Request
	respond  func(req *http.Request) (*http.Response, error)
}

func newRecordingTransport(respond func(req *http.Request) (*http.Response, error)) *recordingTransport {
	return &recordingTransport{respond: respond}
}

// newStaticTransport returns a [*recordingTransport] always answering
// with statusCode and body.
func newStaticTransport(statusCode int, body string) *recordingTransport {
	return newRecordingTransport(func(req *http.Request) (*http.Response, error) {
		return newTestResponse(statusCode, body), nil
	})
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.requests = append(rt.requests, req)
	rt.mu.Unlock()
	return rt.respond(req)
}

// Requests returns a copy of the recorded requests.
func (rt *recordingTransport) Requests() []*http.Request {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]*http.Request(nil), rt.requests...)
}

// newTestRequest returns a GET request for rawURL.
func newTestRequest(rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		panic(err)
	}
	return req
}
