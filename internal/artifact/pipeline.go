// Package artifact turns flushed per-speaker PCM batches into WAV files for
// analysis and owns their cleanup.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/discursa/discursa/pkg/audio"
)

// Defaults for the conversion target. Speech analysis needs neither
// stereo nor rates above 16 kHz.
const (
	defaultTargetRate  = 16000
	defaultConcurrency = 4
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMono controls whether stereo input is downmixed to mono. Default true.
func WithMono(mono bool) Option {
	return func(p *Pipeline) { p.mono = mono }
}

// WithTargetRate sets the output sample rate in Hz. Default 16000.
func WithTargetRate(rate int) Option {
	return func(p *Pipeline) { p.targetRate = rate }
}

// WithConcurrency bounds how many speakers are converted in parallel.
// Default 4.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) { p.concurrency = n }
}

// Pipeline converts per-speaker PCM batches (48 kHz stereo, as captured)
// into WAV artifacts under a single directory.
//
// Pipeline is safe for concurrent use; artifact names never collide across
// concurrent batches.
type Pipeline struct {
	dir         string
	mono        bool
	targetRate  int
	concurrency int

	seq atomic.Uint64
}

// New creates a Pipeline writing artifacts under dir, creating the directory
// if needed.
func New(dir string, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		dir:         dir,
		mono:        true,
		targetRate:  defaultTargetRate,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create dir %s: %w", dir, err)
	}
	return p, nil
}

// Convert turns a batch of per-speaker PCM into per-speaker WAV paths.
//
// Speakers are converted independently: a failing speaker is logged and
// dropped without affecting the others. The second return value lists every
// file created on disk, including files for speakers that subsequently
// failed, and is valid on every return path; callers must eventually pass it
// to [Pipeline.Cleanup]. The error return is reserved for context
// cancellation and an unavailable artifact directory.
func (p *Pipeline) Convert(ctx context.Context, batch map[string][]byte) (map[string]string, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(batch) == 0 {
		return map[string]string{}, nil, nil
	}
	if _, err := os.Stat(p.dir); err != nil {
		return nil, nil, fmt.Errorf("artifact: dir %s: %w", p.dir, err)
	}

	var (
		mu      sync.Mutex
		paths   = make(map[string]string, len(batch))
		created []string
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.concurrency)

	stamp := time.Now().Unix()
	for speaker, pcm := range batch {
		eg.Go(func() error {
			// Failures are recorded per speaker instead of being returned,
			// so one bad speaker cannot cancel the group.
			if egCtx.Err() != nil {
				return nil
			}

			data, rate, channels := p.transcode(pcm)
			if len(data) == 0 {
				slog.Warn("artifact: empty after transcode, dropping speaker", "speaker", speaker)
				return nil
			}

			name := fmt.Sprintf("%d_%s_%d.wav", stamp, speaker, p.seq.Add(1))
			path := filepath.Join(p.dir, name)

			f, err := os.Create(path)
			if err != nil {
				slog.Warn("artifact: create failed, dropping speaker", "speaker", speaker, "error", err)
				return nil
			}
			// The file exists on disk from this point on; register it for
			// cleanup before anything else can fail.
			mu.Lock()
			created = append(created, path)
			mu.Unlock()

			werr := writeWAV(f, data, rate, channels)
			cerr := f.Close()
			if err := errors.Join(werr, cerr); err != nil {
				slog.Warn("artifact: encode failed, dropping speaker", "speaker", speaker, "path", path, "error", err)
				return nil
			}

			mu.Lock()
			paths[speaker] = path
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors; Wait is for completion only.
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, created, err
	}
	return paths, created, nil
}

// transcode applies the configured downmix and resampling to captured PCM.
func (p *Pipeline) transcode(pcm []byte) (data []byte, rate, channels int) {
	data = pcm
	rate = audio.SampleRate
	channels = audio.Channels

	if p.mono && channels == 2 {
		data = audio.StereoToMono(data)
		channels = 1
	}
	if p.targetRate > 0 && p.targetRate != rate {
		if channels == 1 {
			data = audio.ResampleMono16(data, rate, p.targetRate)
		} else {
			data = audio.ResampleStereo16(data, rate, p.targetRate)
		}
		rate = p.targetRate
	}
	return data, rate, channels
}

// Cleanup removes the given artifact files. Failures are logged rather than
// returned; files already gone are not failures.
func (p *Pipeline) Cleanup(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("artifact: cleanup failed", "path", path, "error", err)
		}
	}
}
