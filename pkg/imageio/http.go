package imageio

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"

	"microquant/pkg/image5d"
	"microquant/pkg/logging"
)

// IsRemote reports whether identifier is an http or https URL.
func IsRemote(identifier string) bool {
	return strings.HasPrefix(identifier, "http://") || strings.HasPrefix(identifier, "https://")
}

// HTTPSource fetches single-plane images over HTTP. Each download goes to a
// temporary file that is decoded and removed; concurrent fetches share a
// ConnectionLimiter and a URL is never fetched twice at once.
type HTTPSource struct {
	Client  *http.Client
	TempDir string

	limiter *ConnectionLimiter
	locks   *FileLockManager
	cursor  *cursor
}

// NewHTTPSource returns a source bounded by limiter. Nil arguments get
// private defaults.
func NewHTTPSource(limiter *ConnectionLimiter, locks *FileLockManager) *HTTPSource {
	if limiter == nil {
		limiter = NewConnectionLimiter(DefaultMaxConnections)
	}
	if locks == nil {
		locks = NewFileLockManager()
	}
	return &HTTPSource{
		Client:  http.DefaultClient,
		limiter: limiter,
		locks:   locks,
		cursor:  newCursor(),
	}
}

func (h *HTTPSource) resolve(id string) ([]series, error) {
	u, err := url.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad image URL %q: %w", id, err)
	}
	return []series{{
		Name:   path.Base(u.Path),
		Planes: []string{id},
		SizeZ:  1,
		SizeC:  1,
		SizeT:  1,
	}}, nil
}

// ReadImage downloads and decodes identifier. A URL holds one series.
func (h *HTTPSource) ReadImage(ctx context.Context, identifier string) (*image5d.WritableImage, error) {
	s, _, err := h.cursor.next(identifier, h.resolve)
	if err != nil {
		return nil, err
	}
	var img image.Image
	err = h.locks.With(identifier, func() error {
		var err error
		img, err = h.fetch(ctx, identifier)
		return err
	})
	if err != nil {
		return nil, err
	}
	return assemble(s, []*image.Gray16{toGray16(img)})
}

func (h *HTTPSource) fetch(ctx context.Context, rawURL string) (image.Image, error) {
	if err := h.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer h.limiter.Release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: %s", rawURL, resp.Status)
	}

	u, _ := url.Parse(rawURL)
	tmp, err := os.CreateTemp(h.TempDir, "microquant-*"+path.Ext(u.Path))
	if err != nil {
		return nil, fmt.Errorf("creating download file: %w", err)
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	logging.Debugf("Downloaded %s from %s", humanize.Bytes(uint64(n)), rawURL)

	img, err := imaging.Open(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", rawURL, err)
	}
	return img, nil
}

func (h *HTTPSource) HasMoreSeries(identifier string) bool {
	count, current, ok := h.cursor.peek(identifier, h.resolve)
	return ok && current+1 < count
}

func (h *HTTPSource) SeriesCount(identifier string) int {
	count, _, _ := h.cursor.peek(identifier, h.resolve)
	return count
}

func (h *HTTPSource) CurrentSeriesIndex(identifier string) int {
	_, current, _ := h.cursor.peek(identifier, h.resolve)
	return current
}

// Router sends URLs to Remote and everything else to Files.
type Router struct {
	Files  *FileSource
	Remote *HTTPSource
}

// NewRouter builds both sources around shared locks and limiter.
func NewRouter(locks *FileLockManager, limiter *ConnectionLimiter) *Router {
	return &Router{
		Files:  NewFileSource(locks),
		Remote: NewHTTPSource(limiter, locks),
	}
}

func (r *Router) pick(identifier string) SeriesSource {
	if IsRemote(identifier) {
		return r.Remote
	}
	return r.Files
}

func (r *Router) ReadImage(ctx context.Context, identifier string) (*image5d.WritableImage, error) {
	return r.pick(identifier).ReadImage(ctx, identifier)
}

func (r *Router) HasMoreSeries(identifier string) bool {
	return r.pick(identifier).HasMoreSeries(identifier)
}

func (r *Router) SeriesCount(identifier string) int {
	return r.pick(identifier).SeriesCount(identifier)
}

func (r *Router) CurrentSeriesIndex(identifier string) int {
	return r.pick(identifier).CurrentSeriesIndex(identifier)
}
