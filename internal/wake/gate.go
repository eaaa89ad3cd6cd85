// Package wake implements the wake-phrase gate: candidate speech segments are
// transcribed by a probe backend and tested against the configured wake
// phrase, its aliases, and an optional phonetic fallback.
//
// The gate fails open: a probe error is logged and swallowed so the capture
// pipeline keeps listening. A cooldown suppresses repeated activations.
package wake

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/localbrain/voicecore/internal/observe"
	"github.com/localbrain/voicecore/internal/segmenter"
	"github.com/localbrain/voicecore/pkg/audio"
	"github.com/localbrain/voicecore/pkg/provider/probe"
)

// Config holds gate tuning parameters.
type Config struct {
	// Phrase is the canonical wake phrase (e.g., "hey brain").
	Phrase string

	// Aliases lists additional accepted literal renderings of the phrase.
	// Matching is exact containment after normalization; no variants are
	// generated automatically.
	Aliases []string

	// Cooldown is the minimum interval between accepted activations.
	Cooldown time.Duration

	// MinDuration and MaxDuration bound acceptable candidate segment
	// durations; segments outside the range are ignored as noise.
	MinDuration time.Duration
	MaxDuration time.Duration

	// PhoneticMatch enables a phonetic fallback comparison when literal
	// containment fails.
	PhoneticMatch bool

	// PhoneticThreshold is the minimum Jaro-Winkler score in [0,1] for a
	// phonetic match. Default: 0.82.
	PhoneticThreshold float64

	// SampleRate is the PCM sample rate the probe expects, in Hz. Candidate
	// segments at a different rate are resampled before submission.
	SampleRate int
}

// Detection describes an accepted wake activation.
type Detection struct {
	// Transcript is the full normalized probe transcript.
	Transcript string

	// Matched is the phrase or alias that matched.
	Matched string

	// Residual is the transcript text following the matched phrase, typically
	// a command spoken in the same breath ("hey brain, what time is it").
	Residual string

	// Score is 1 for a literal match, or the Jaro-Winkler similarity for a
	// phonetic match.
	Score float64
}

// Gate evaluates candidate segments against the wake phrase.
//
// Evaluate suspends on the probe call and must therefore run off the
// capture path. It is safe for concurrent use.
type Gate struct {
	cfg     Config
	probe   probe.Transcriber
	metrics *observe.Metrics

	// now is the clock used for cooldown bookkeeping, injectable in tests.
	now func() time.Time

	mu            sync.Mutex
	lastActivated time.Time
}

// New creates a Gate using the given probe backend. Zero-valued config fields
// fall back to the documented defaults.
func New(p probe.Transcriber, cfg Config, metrics *observe.Metrics) *Gate {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 3 * time.Second
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = 500 * time.Millisecond
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 1500 * time.Millisecond
	}
	if cfg.PhoneticThreshold <= 0 {
		cfg.PhoneticThreshold = 0.82
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Gate{
		cfg:     cfg,
		probe:   p,
		metrics: metrics,
		now:     time.Now,
	}
}

// Evaluate submits a candidate segment to the probe and tests the transcript
// for the wake phrase. It returns a non-nil Detection when the phrase was
// recognised and the cooldown allows activation.
//
// Segments outside the duration bounds, probe failures, non-matching
// transcripts and cooldown suppression all return nil; none of them are
// errors for the caller.
func (g *Gate) Evaluate(ctx context.Context, seg segmenter.Segment) *Detection {
	dur := seg.Duration()
	if dur < g.cfg.MinDuration || dur > g.cfg.MaxDuration {
		return nil
	}

	g.mu.Lock()
	inCooldown := !g.lastActivated.IsZero() && g.now().Sub(g.lastActivated) < g.cfg.Cooldown
	g.mu.Unlock()
	if inCooldown {
		return nil
	}

	pcm := seg.PCM
	if seg.SampleRate != g.cfg.SampleRate {
		pcm = audio.ResampleMono16(pcm, seg.SampleRate, g.cfg.SampleRate)
	}

	start := g.now()
	text, err := g.probe.Transcribe(ctx, pcm, g.cfg.SampleRate)
	g.metrics.ProbeDuration.Record(ctx, g.now().Sub(start).Seconds())
	if err != nil {
		// Fail open: a missed wake word is recoverable, a stalled pipeline is not.
		slog.Warn("wake: probe transcription failed", "err", err)
		g.metrics.ProbeErrors.Add(ctx, 1)
		return nil
	}

	det := g.match(normalize(text))
	if det == nil {
		return nil
	}

	g.mu.Lock()
	g.lastActivated = g.now()
	g.mu.Unlock()

	return det
}

// match tests a normalized transcript against the phrase and aliases, then
// the phonetic fallback.
func (g *Gate) match(text string) *Detection {
	if text == "" {
		return nil
	}

	candidates := append([]string{g.cfg.Phrase}, g.cfg.Aliases...)
	for _, cand := range candidates {
		cand = normalize(cand)
		if cand == "" {
			continue
		}
		if idx := strings.Index(text, cand); idx >= 0 {
			return &Detection{
				Transcript: text,
				Matched:    cand,
				Residual:   residualAfter(text, idx+len(cand)),
				Score:      1,
			}
		}
	}

	if g.cfg.PhoneticMatch {
		return g.matchPhonetic(text, candidates)
	}
	return nil
}

// matchPhonetic slides a window of phrase-sized token n-grams over the
// transcript and accepts the best window that phonetically overlaps a
// candidate phrase and scores above the Jaro-Winkler threshold.
func (g *Gate) matchPhonetic(text string, candidates []string) *Detection {
	tokens := strings.Fields(text)

	var best *Detection
	for _, cand := range candidates {
		cand = normalize(cand)
		candTokens := strings.Fields(cand)
		if len(candTokens) == 0 || len(tokens) < len(candTokens) {
			continue
		}
		candCodes := metaphoneCodes(candTokens)

		for i := 0; i+len(candTokens) <= len(tokens); i++ {
			window := tokens[i : i+len(candTokens)]
			if !codesOverlap(metaphoneCodes(window), candCodes) {
				continue
			}
			score := matchr.JaroWinkler(strings.Join(window, " "), cand, false)
			if score < g.cfg.PhoneticThreshold {
				continue
			}
			if best == nil || score > best.Score {
				rest := strings.Join(tokens[i+len(candTokens):], " ")
				best = &Detection{
					Transcript: text,
					Matched:    cand,
					Residual:   rest,
					Score:      score,
				}
			}
		}
	}
	return best
}

// normalize lowercases, trims, and strips simple punctuation so recogniser
// output like "Hey, brain!" matches "hey brain".
func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch r {
		case ',', '.', '!', '?', ';', ':':
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// residualAfter returns the trimmed transcript text following offset.
func residualAfter(text string, offset int) string {
	if offset >= len(text) {
		return ""
	}
	return strings.TrimSpace(text[offset:])
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
