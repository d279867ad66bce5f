// Package governor wraps an ai.Backend with caching, request spacing, a
// persisted quota cool-down, bounded retries and video polling.
package governor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/kiliankoe/gridmind/internal/ai"
	"github.com/kiliankoe/gridmind/internal/store"
	"github.com/rs/zerolog"
)

// LockKey is where the cool-down expiry is persisted, as epoch milliseconds.
const LockKey = "governor:quota_lock_until"

type ImageRequest struct {
	Prompt      string
	BaseImage   *ai.Media
	AspectRatio string
}

type VideoRequest struct {
	Prompt    string
	BaseImage *ai.Media
}

type Status struct {
	Locked           bool      `json:"locked"`
	RemainingSeconds int       `json:"remainingSeconds"`
	LockUntil        time.Time `json:"lockUntil,omitzero"`
	LastRequest      time.Time `json:"lastRequest,omitzero"`
}

// Governor is safe for concurrent use.
type Governor struct {
	backend    ai.Backend
	cfg        Config
	clock      Clock
	log        zerolog.Logger
	session    store.Store
	persistent store.Store

	mu           sync.Mutex
	lockUntil    time.Time
	lastDispatch time.Time
}

func New(backend ai.Backend, opts ...Option) *Governor {
	g := &Governor{
		backend:    backend,
		cfg:        DefaultConfig(),
		clock:      realClock{},
		log:        zerolog.Nop(),
		session:    store.NewMemory(),
		persistent: store.NewMemory(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.loadLock()
	return g
}

func (g *Governor) loadLock() {
	raw, ok, err := g.persistent.Get(context.Background(), LockKey)
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to read quota lock")
		return
	}
	if !ok {
		return
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		g.log.Warn().Str("value", string(raw)).Msg("ignoring malformed quota lock")
		return
	}
	g.lockUntil = time.UnixMilli(ms)
	if rem := g.lockUntil.Sub(g.clock.Now()); rem > 0 {
		g.log.Info().Dur("remaining", rem).Msg("restored quota lock")
	}
}

// Remaining is the time left on the cool-down lock, zero when unlocked.
func (g *Governor) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remainingLocked()
}

func (g *Governor) remainingLocked() time.Duration {
	if d := g.lockUntil.Sub(g.clock.Now()); d > 0 {
		return d
	}
	return 0
}

func (g *Governor) Locked() bool { return g.Remaining() > 0 }

func (g *Governor) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	rem := g.remainingLocked()
	st := Status{
		Locked:           rem > 0,
		RemainingSeconds: (&QuotaError{Remaining: rem}).RetryAfterSeconds(),
		LastRequest:      g.lastDispatch,
	}
	if rem > 0 {
		st.LockUntil = g.lockUntil
	}
	return st
}

// enterLock starts or extends the cool-down. The expiry never moves backwards.
func (g *Governor) enterLock(suggested time.Duration) time.Duration {
	d := max(g.cfg.LockDuration, suggested)

	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	if until := now.Add(d); until.After(g.lockUntil) {
		g.lockUntil = until
	}
	err := g.persistent.Set(context.Background(), LockKey, []byte(strconv.FormatInt(g.lockUntil.UnixMilli(), 10)))
	if err != nil {
		g.log.Error().Err(err).Msg("failed to persist quota lock")
	}
	rem := g.lockUntil.Sub(now)
	g.log.Warn().Dur("lock", rem).Time("until", g.lockUntil).Msg("quota exhausted, locking")
	return rem
}

// throttle reserves the next dispatch slot and waits for it.
func (g *Governor) throttle(ctx context.Context) error {
	g.mu.Lock()
	now := g.clock.Now()
	slot := now
	if !g.lastDispatch.IsZero() {
		if next := g.lastDispatch.Add(g.cfg.MinInterval); next.After(now) {
			slot = next
		}
	}
	g.lastDispatch = slot
	g.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return nil
	}
	g.log.Debug().Dur("wait", wait).Msg("throttling request")
	return g.sleep(ctx, wait)
}

func (g *Governor) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-g.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Governor) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = g.cfg.InitialBackoff << 10
	b.MaxElapsedTime = 0
	b.Clock = g.clock
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.cfg.MaxRetries)), ctx)
}

// call runs fn under the lock check, throttle and retry policy.
func (g *Governor) call(ctx context.Context, op string, throttled bool, fn func(context.Context) error) error {
	var lastTransient error
	attempt := 0
	operation := func() error {
		if rem := g.Remaining(); rem > 0 {
			return backoff.Permanent(&QuotaError{Remaining: rem})
		}
		if throttled {
			if err := g.throttle(ctx); err != nil {
				return backoff.Permanent(err)
			}
			// another caller may have hit the quota while this one waited
			if rem := g.Remaining(); rem > 0 {
				return backoff.Permanent(&QuotaError{Remaining: rem})
			}
		}
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		switch Classify(err) {
		case ClassQuota:
			return backoff.Permanent(&QuotaError{Remaining: g.enterLock(retryAfter(err)), Err: err})
		case ClassTransient:
			lastTransient = err
			return err
		case ClassCanceled:
			return backoff.Permanent(err)
		default:
			g.log.Error().Err(err).Str("op", op).Int("attempt", attempt).Msg("backend request failed")
			return backoff.Permanent(fmt.Errorf("%w: %s: %w", ErrUnexpected, op, err))
		}
	}
	notify := func(err error, next time.Duration) {
		g.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", next).Msg("transient backend failure, retrying")
	}

	err := backoff.RetryNotifyWithTimer(operation, g.newBackOff(ctx), notify, &clockTimer{clock: g.clock})
	if err != nil && lastTransient != nil && errors.Is(err, lastTransient) {
		return fmt.Errorf("%w: %s after %d attempts: %w", ErrTransientFailure, op, attempt, err)
	}
	return err
}

// cached serves key from tier or produces it on a detached context. The
// caller may give up early; production still completes and fills the cache.
func (g *Governor) cached(ctx context.Context, tier store.Store, key string, produce func(context.Context) ([]byte, error)) ([]byte, error) {
	if data, ok, err := tier.Get(ctx, key); err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if ok {
		g.log.Debug().Str("key", key).Msg("cache hit")
		return data, nil
	}
	if rem := g.Remaining(); rem > 0 {
		return nil, &QuotaError{Remaining: rem}
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		bg := context.WithoutCancel(ctx)
		data, err := produce(bg)
		if err == nil && len(data) == 0 {
			err = ErrInvalidResponse
		}
		if err == nil {
			if werr := tier.Set(bg, key, data); werr != nil {
				g.log.Warn().Err(werr).Str("key", key).Msg("cache write failed")
			} else {
				g.log.Debug().Str("key", key).Str("size", humanize.Bytes(uint64(len(data)))).Msg("cached result")
			}
		}
		done <- result{data, err}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Governor) Text(ctx context.Context, prompt string) (string, error) {
	key := CacheKey("text", g.cfg.TextModel, g.cfg.SystemPrompt, prompt)
	data, err := g.cached(ctx, g.session, key, func(ctx context.Context) ([]byte, error) {
		var text string
		err := g.call(ctx, "text", true, func(ctx context.Context) error {
			var err error
			text, err = g.backend.GenerateText(ctx, ai.TextRequest{Model: g.cfg.TextModel, System: g.cfg.SystemPrompt, Prompt: prompt})
			return err
		})
		return []byte(text), err
	})
	return string(data), err
}

func (g *Governor) Image(ctx context.Context, req ImageRequest) (ai.Media, error) {
	key := CacheKey("image", g.cfg.ImageModel, req.Prompt, req.AspectRatio, mediaDigest(req.BaseImage))
	data, err := g.cached(ctx, g.persistent, key, func(ctx context.Context) ([]byte, error) {
		var media ai.Media
		err := g.call(ctx, "image", true, func(ctx context.Context) error {
			var err error
			media, err = g.backend.GenerateImage(ctx, ai.ImageRequest{
				Model:       g.cfg.ImageModel,
				Prompt:      req.Prompt,
				BaseImage:   req.BaseImage,
				AspectRatio: req.AspectRatio,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		return encodeMedia(media)
	})
	if err != nil {
		return ai.Media{}, err
	}
	return decodeMedia(data)
}

func (g *Governor) Video(ctx context.Context, req VideoRequest) (ai.Media, error) {
	key := CacheKey("video", g.cfg.VideoModel, req.Prompt, mediaDigest(req.BaseImage))
	data, err := g.cached(ctx, g.persistent, key, func(ctx context.Context) ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, g.cfg.VideoTimeout)
		defer cancel()

		media, err := g.generateVideo(ctx, req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTransientFailure) {
				err = fmt.Errorf("%w: video not ready after %s: %w", ErrTransientFailure, g.cfg.VideoTimeout, err)
			}
			return nil, err
		}
		return encodeMedia(media)
	})
	if err != nil {
		return ai.Media{}, err
	}
	return decodeMedia(data)
}

func (g *Governor) generateVideo(ctx context.Context, req VideoRequest) (ai.Media, error) {
	var op ai.Operation
	err := g.call(ctx, "video.start", true, func(ctx context.Context) error {
		var err error
		op, err = g.backend.StartVideo(ctx, ai.VideoRequest{Model: g.cfg.VideoModel, Prompt: req.Prompt, BaseImage: req.BaseImage})
		return err
	})
	if err != nil {
		return ai.Media{}, err
	}

	for polls := 0; !op.Done; polls++ {
		if err := g.sleep(ctx, g.cfg.PollInterval); err != nil {
			return ai.Media{}, err
		}
		if rem := g.Remaining(); rem > 0 {
			return ai.Media{}, &QuotaError{Remaining: rem}
		}
		g.log.Debug().Str("operation", op.ID).Int("poll", polls+1).Msg("polling video operation")
		err := g.call(ctx, "video.poll", false, func(ctx context.Context) error {
			next, err := g.backend.PollVideo(ctx, op)
			if err == nil {
				op = next
			}
			return err
		})
		if err != nil {
			return ai.Media{}, err
		}
	}
	if op.Err != "" {
		return ai.Media{}, fmt.Errorf("%w: video operation %s: %s", ErrUnexpected, op.ID, op.Err)
	}

	var media ai.Media
	err = g.call(ctx, "video.fetch", false, func(ctx context.Context) error {
		var err error
		media, err = g.backend.FetchVideo(ctx, op)
		return err
	})
	return media, err
}

// CacheKey derives a stable key from an operation name and its inputs.
func CacheKey(op string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s|", len(p), p)
	}
	return "ai:" + op + ":" + hex.EncodeToString(h.Sum(nil))
}

func mediaDigest(m *ai.Media) string {
	if m == nil {
		return "none"
	}
	sum := sha256.Sum256(m.Data)
	return m.MIMEType + ";sha256=" + hex.EncodeToString(sum[:])
}

type cachedMedia struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

func encodeMedia(m ai.Media) ([]byte, error) {
	if len(m.Data) == 0 {
		return nil, ErrInvalidResponse
	}
	return json.Marshal(cachedMedia{MIMEType: m.MIMEType, Data: m.Data})
}

func decodeMedia(data []byte) (ai.Media, error) {
	var c cachedMedia
	if err := json.Unmarshal(data, &c); err != nil {
		return ai.Media{}, fmt.Errorf("failed to decode cached media: %w", err)
	}
	if len(c.Data) == 0 {
		return ai.Media{}, ErrInvalidResponse
	}
	return ai.Media{MIMEType: c.MIMEType, Data: c.Data}, nil
}
