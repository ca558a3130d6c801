// Package recovery downloads media that may disappear from the transport and
// stores it under the owner's media directory.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sheraliortiqboyev4-del/spy-bot/events"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/fsstore"
	"golang.org/x/sync/singleflight"
)

const DefaultMaxBytes int64 = 50 * 1024 * 1024

type Options struct {
	MaxBytes int64
	// Coalesce shares one download between concurrent requests for the same
	// handle and destination.
	Coalesce bool
	Logger   *slog.Logger
	Now      func() time.Time
}

type Recoverer struct {
	fetcher  Fetcher
	maxBytes int64
	coalesce bool
	logger   *slog.Logger
	now      func() time.Time
	group    singleflight.Group
	// beforeShare, when set, runs as a caller enters the shared download.
	beforeShare func()
}

func New(fetcher Fetcher, opts Options) *Recoverer {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recoverer{
		fetcher:  fetcher,
		maxBytes: opts.MaxBytes,
		coalesce: opts.Coalesce,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// OwnerDir is the directory recovered files of owner are written to.
func OwnerDir(mediaRoot string, owner int64) string {
	return filepath.Join(mediaRoot, strconv.FormatInt(owner, 10))
}

// FetchAndStore downloads media into destDir and returns the stored path.
// Every failure is a *Error.
func (r *Recoverer) FetchAndStore(ctx context.Context, media events.Media, destDir string) (string, error) {
	if !media.Present() {
		return "", &Error{Reason: ReasonUnavailable, Handle: media.Handle, Err: errors.New("message has no media handle")}
	}
	if !r.coalesce {
		return r.fetchAndStore(ctx, media, destDir)
	}
	key := media.Handle.Key() + "|" + destDir
	if r.beforeShare != nil {
		r.beforeShare()
	}
	v, err, shared := r.group.Do(key, func() (any, error) {
		return r.fetchAndStore(ctx, media, destDir)
	})
	if shared {
		r.logger.Debug("recovery_coalesced", "file_id", media.Handle.FileID)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Recoverer) fetchAndStore(ctx context.Context, media events.Media, destDir string) (string, error) {
	if r.fetcher == nil {
		return "", &Error{Reason: ReasonUnavailable, Handle: media.Handle, Err: errors.New("no fetcher configured")}
	}
	dl, err := r.fetcher.Fetch(ctx, media.Handle)
	if err != nil {
		reason := ReasonTransport
		if errors.Is(err, ErrUnavailable) {
			reason = ReasonUnavailable
		}
		return "", &Error{Reason: reason, Handle: media.Handle, Err: err}
	}
	if dl == nil || dl.Body == nil {
		return "", &Error{Reason: ReasonUnavailable, Handle: media.Handle, Err: errors.New("empty download")}
	}
	defer dl.Body.Close()

	if dl.Size > r.maxBytes {
		return "", &Error{Reason: ReasonTooLarge, Handle: media.Handle, Err: fmt.Errorf("%d bytes exceeds %d", dl.Size, r.maxBytes)}
	}

	opts := fsstore.FileOptions{DirPerm: 0o700, FilePerm: 0o600}
	if err := fsstore.EnsureSecureDir(destDir); err != nil {
		return "", &Error{Reason: ReasonWrite, Handle: media.Handle, Err: err}
	}
	path := filepath.Join(destDir, r.fileName(media, dl.Name))
	n, err := fsstore.WriteStreamAtomic(path, dl.Body, r.maxBytes, opts)
	if err != nil {
		reason := ReasonWrite
		if errors.Is(err, fsstore.ErrTooLarge) {
			reason = ReasonTooLarge
		} else if ctx.Err() != nil {
			reason = ReasonTransport
		}
		return "", &Error{Reason: reason, Handle: media.Handle, Err: err}
	}
	if n == 0 {
		_ = os.Remove(path)
		return "", &Error{Reason: ReasonUnavailable, Handle: media.Handle, Err: errors.New("empty body")}
	}
	r.logger.Info("recovery_stored", "kind", string(media.Kind), "file_id", media.Handle.FileID, "path", path, "bytes", n)
	return path, nil
}

func (r *Recoverer) fileName(media events.Media, remoteName string) string {
	ext := strings.ToLower(filepath.Ext(remoteName))
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(media.FileName))
	}
	if ext == "" || len(ext) > 8 {
		ext = media.Kind.Extension()
	}
	kind := string(media.Kind)
	if kind == "" {
		kind = "file"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s_%s_%s%s", kind, r.now().UTC().Format("20060102_150405"), id, ext)
}
