package httpclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"judgehost/internal/common/httpclient"
)

func TestDoSendsQueryBodyAndHeaders(t *testing.T) {
	var gotMethod, gotPath, gotToken, gotCT, gotHeader, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotToken = r.URL.Query().Get("token")
		gotCT = r.Header.Get("Content-Type")
		gotHeader = r.Header.Get("X-Test")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := httpclient.New(srv.URL+"/", time.Second)
	info, err := c.Do(context.Background(), httpclient.Request{
		Method:  http.MethodPut,
		Path:    "/submission/1/complete",
		Query:   url.Values{"token": {"t"}},
		Headers: map[string]string{"X-Test": "yes", "X-Empty": ""},
		Body:    []byte(`{"a":1}`),
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if !info.OK() || string(info.Body) != "ok" {
		t.Fatalf("unexpected response %+v", info)
	}
	if gotMethod != http.MethodPut || gotPath != "/submission/1/complete" || gotToken != "t" ||
		gotCT != "application/json" || gotHeader != "yes" || gotBody != `{"a":1}` {
		t.Fatalf("unexpected request %s %s %s %s %s %s", gotMethod, gotPath, gotToken, gotCT, gotHeader, gotBody)
	}
}

func TestDoRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	c := httpclient.New(srv.URL, time.Second)
	c.SetMaxBody(16)
	if _, err := c.Do(context.Background(), httpclient.Request{Method: http.MethodGet, Path: "/"}); err == nil {
		t.Fatalf("expected oversized body error")
	}
}

func TestDoTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	c := httpclient.New(srv.URL, time.Second)
	if _, err := c.Do(context.Background(), httpclient.Request{Method: http.MethodGet, Path: "/"}); err == nil {
		t.Fatalf("expected transport error")
	}
}
