package sourceapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-github/v66/github"
)

func clientAgainst(t *testing.T, srv *httptest.Server) *github.Client {
	t.Helper()
	c := github.NewClient(nil)
	u, err := github.NewClient(nil).BaseURL.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	c.BaseURL = u
	return c
}

func TestClientForSkipsProbeWithOneClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no probe request should be made with a single client in the pool")
	}))
	defer srv.Close()

	p := &Pool{clients: []*github.Client{clientAgainst(t, srv)}}
	c, err := p.ClientFor(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("ClientFor: %v", err)
	}
	if c == nil {
		t.Fatal("expected a client")
	}
}

func TestClientForProbesUntilOneSucceeds(t *testing.T) {
	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer fail.Close()

	var secondRepoPath string
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondRepoPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":1,"name":"widgets","full_name":"acme/widgets"}`))
	}))
	defer ok.Close()

	p := &Pool{clients: []*github.Client{clientAgainst(t, fail), clientAgainst(t, ok)}}
	c, err := p.ClientFor(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("ClientFor: %v", err)
	}
	if c == nil {
		t.Fatal("expected a client")
	}
	if !strings.Contains(secondRepoPath, "acme/widgets") {
		t.Fatalf("expected probe against acme/widgets, got %s", secondRepoPath)
	}
}

func TestClientForReturnsErrorWhenNoneCanReach(t *testing.T) {
	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer fail.Close()

	p := &Pool{clients: []*github.Client{clientAgainst(t, fail), clientAgainst(t, fail)}}
	if _, err := p.ClientFor(context.Background(), "acme", "widgets"); err == nil {
		t.Fatal("expected an error when no client can reach the repo")
	}
}
