package helpers

import (
	"bufio"
	"bytes"
	"net/http"
)

// MockHTTP is http.RoundTripper returning canned raw response.
// Fun takes precedence, then Err, then Header+Body.
type MockHTTP struct {
	Fun    func(*http.Request) (*http.Response, error)
	Header []byte
	Body   []byte
	Err    error

	Requests int
}

func (m *MockHTTP) RoundTrip(req *http.Request) (*http.Response, error) {
	m.Requests++
	if m.Fun != nil {
		return m.Fun(req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	header := m.Header
	if header == nil {
		header = []byte("HTTP/1.0 200 OK\r\n\r\n")
	}
	rb := make([]byte, 0, len(header)+len(m.Body))
	rb = append(rb, header...)
	rb = append(rb, m.Body...)
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(rb)), req)
}

func (m *MockHTTP) Client() *http.Client { return &http.Client{Transport: m} }
