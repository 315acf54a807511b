package sourceapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/metrics"
)

// DirEntry is one file or subdirectory returned by ListDirectory.
type DirEntry struct {
	Name  string
	Path  string
	IsDir bool
}

// ListDirectory lists the contents of path in owner/repo at ref. Returns a
// NotFound apperr.Error (not a generic SourceForge one) when path does not
// exist at ref, so callers can treat a missing directory as "nothing here"
// rather than a fetch failure.
func ListDirectory(ctx context.Context, client *github.Client, owner, repo, path, ref string) ([]DirEntry, error) {
	defer observeSourceAPIDuration("list_directory", time.Now())
	_, dirContents, resp, err := client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, apperr.Wrap(apperr.KindNotFound, "directory "+path+" does not exist", err)
		}
		return nil, apperr.Wrap(apperr.KindSourceForge, "list directory "+path, err)
	}
	out := make([]DirEntry, 0, len(dirContents))
	for _, c := range dirContents {
		out = append(out, DirEntry{
			Name:  c.GetName(),
			Path:  c.GetPath(),
			IsDir: c.GetType() == "dir",
		})
	}
	return out, nil
}

// GetFileContent fetches and decodes a single file's content at path/ref.
func GetFileContent(ctx context.Context, client *github.Client, owner, repo, path, ref string) (string, error) {
	defer observeSourceAPIDuration("get_file", time.Now())
	fileContent, _, _, err := client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", apperr.Wrap(apperr.KindSourceForge, "get file content "+path, err)
	}
	if fileContent == nil {
		return "", apperr.New(apperr.KindSourceForge, path+" is a directory, not a file")
	}
	content, err := fileContent.GetContent()
	if err != nil {
		return "", apperr.Wrap(apperr.KindSourceForge, "decode file content "+path, err)
	}
	return content, nil
}

func observeSourceAPIDuration(operation string, start time.Time) {
	metrics.SourceAPIRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
