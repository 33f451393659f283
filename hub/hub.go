// Package hub downloads tokenizer files from HuggingFace repositories into a
// local cache directory.
//
// Only the small files needed to construct tokenizers (tokenizer.json,
// tokenizer.model, tokenizer_config.json) are in scope here; model weights are
// deliberately not.
package hub

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// DefaultDirCreationPerm is used when creating new cache subdirectories.
var DefaultDirCreationPerm = os.FileMode(0755)

// Repo references a HuggingFace model repository, from which files can be
// checked and downloaded. Downloads are cached and shared across processes.
type Repo struct {
	// ID is the HuggingFace repo id, e.g. "gpt2" or "benjamin/gerpt2-large".
	ID string

	// Revision defaults to "main".
	Revision string

	cacheDir  string
	authToken string
	baseURL   string
	client    *http.Client
}

// New creates a reference to a HuggingFace repo given its id.
// Defaults can be overridden with the WithXxx methods, which return the
// modified Repo to allow chaining.
func New(id string) *Repo {
	return &Repo{
		ID:       id,
		Revision: "main",
		cacheDir: DefaultCacheDir(),
		baseURL:  "https://huggingface.co",
		client:   http.DefaultClient,
	}
}

// DefaultCacheDir for downloaded files: $XDG_CACHE_HOME/tokentranslate/hub or
// ~/.cache/tokentranslate/hub.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "tokentranslate", "hub")
}

// WithCacheDir sets the directory where downloaded files are stored.
func (r *Repo) WithCacheDir(dir string) *Repo {
	r.cacheDir = dir
	return r
}

// WithAuth sets the bearer token used for gated repositories.
func (r *Repo) WithAuth(token string) *Repo {
	r.authToken = token
	return r
}

// WithClient sets the HTTP client used for requests.
func (r *Repo) WithClient(client *http.Client) *Repo {
	r.client = client
	return r
}

// WithBaseURL points the repo at a different hub endpoint, e.g. a mirror.
func (r *Repo) WithBaseURL(baseURL string) *Repo {
	r.baseURL = strings.TrimRight(baseURL, "/")
	return r
}

// FileURL returns the "resolve" URL for the given file in the repo.
func (r *Repo) FileURL(fileName string) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", r.baseURL, r.ID, r.Revision, fileName)
}

// localPath returns the path in the cache where fileName is (to be) stored.
func (r *Repo) localPath(fileName string) string {
	flatID := strings.ReplaceAll(r.ID, "/", "--")
	return filepath.Join(r.cacheDir, flatID, r.Revision, fileName)
}

// HasFile checks whether the repo serves the given file. A cached copy counts;
// otherwise an HTTP HEAD request is issued.
func (r *Repo) HasFile(fileName string) bool {
	if fileExists(r.localPath(fileName)) {
		return true
	}
	req, err := http.NewRequest(http.MethodHead, r.FileURL(fileName), nil)
	if err != nil {
		return false
	}
	r.setAuth(req)
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

// DownloadFile downloads the file from the repo if not yet cached, and returns
// the local path to it.
func (r *Repo) DownloadFile(fileName string) (string, error) {
	return r.DownloadFileCtx(context.Background(), fileName)
}

// DownloadFileCtx is like DownloadFile but honors ctx cancellation.
func (r *Repo) DownloadFileCtx(ctx context.Context, fileName string) (string, error) {
	filePath := r.localPath(fileName)
	err := r.lockedDownload(ctx, r.FileURL(fileName), filePath, false)
	if err != nil {
		return "", errors.WithMessagef(err, "downloading %q from repo %q", fileName, r.ID)
	}
	return filePath, nil
}

func (r *Repo) setAuth(req *http.Request) {
	if r.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.authToken)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
