// Package sourceapi holds an ordered list of source-forge client handles,
// each bound to a distinct credential, with ClientFor(repo) probing each in
// order until one can reach the target repository.
package sourceapi

import (
	"context"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/metrics"
)

// Pool holds an ordered slice of GitHub clients, one per credential, and is
// read-only after construction.
type Pool struct {
	clients []*github.Client
}

// NewPool builds a Pool with one github.Client per personal access token in
// pats, in order.
func NewPool(pats []string) *Pool {
	clients := make([]*github.Client, 0, len(pats))
	for _, pat := range pats {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: pat})
		clients = append(clients, github.NewClient(oauth2.NewClient(context.Background(), ts)))
	}
	return &Pool{clients: clients}
}

// ClientFor returns the first client in the pool that can successfully GET
// owner/repo's metadata. If the pool has exactly one client, the probe is
// skipped. Returns a SourceForge apperr.Error (NoClientAvailable) if no
// client can reach the repo.
func (p *Pool) ClientFor(ctx context.Context, owner, repo string) (*github.Client, error) {
	if len(p.clients) == 0 {
		return nil, apperr.New(apperr.KindSourceForge, "no source api clients configured")
	}
	if len(p.clients) == 1 {
		return p.clients[0], nil
	}

	for _, c := range p.clients {
		start := time.Now()
		_, _, err := c.Repositories.Get(ctx, owner, repo)
		metrics.SourceAPIRequestDuration.WithLabelValues("get_repo").Observe(time.Since(start).Seconds())
		if err == nil {
			return c, nil
		}
	}
	return nil, apperr.New(apperr.KindSourceForge, "no client in pool can access "+ownerRepo(owner, repo))
}

func ownerRepo(owner, repo string) string {
	return strings.TrimSuffix(owner, "/") + "/" + repo
}
