// Command voicecore is the voice interaction controller daemon: it captures
// microphone audio, listens for the wake phrase, and bridges conversations to
// a realtime agent over a bidirectional event channel.
//
// Capture PCM is read from stdin (16-bit LE mono at the probe sample rate,
// e.g. piped from arecord) and agent audio is written to stdout at the
// session sample rate (pipe into aplay or a sound daemon FIFO).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/localbrain/voicecore/internal/config"
	"github.com/localbrain/voicecore/internal/controller"
	"github.com/localbrain/voicecore/internal/observe"
	"github.com/localbrain/voicecore/internal/playback"
	"github.com/localbrain/voicecore/internal/segmenter"
	"github.com/localbrain/voicecore/internal/tools"
	"github.com/localbrain/voicecore/internal/wake"
	"github.com/localbrain/voicecore/pkg/audio/capture"
	"github.com/localbrain/voicecore/pkg/provider/channel"
	channelopenai "github.com/localbrain/voicecore/pkg/provider/channel/openai"
	"github.com/localbrain/voicecore/pkg/provider/probe"
	probeopenai "github.com/localbrain/voicecore/pkg/provider/probe/openai"
	probewhisper "github.com/localbrain/voicecore/pkg/provider/probe/whisper"
)

const captureFrameMs = 20

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicecore: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicecore: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("voicecore starting",
		"config", *configPath,
		"wake_phrase", cfg.Wake.Phrase,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownObs, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	wakeProbe, probeCloser, err := buildProbe(cfg.Probe)
	if err != nil {
		slog.Error("failed to build probe provider", "err", err)
		return 1
	}
	if probeCloser != nil {
		defer probeCloser.Close()
	}

	agentChannel := channelopenai.New(cfg.Channel.APIKey, channelOptions(cfg.Channel)...)

	// ── Tool relay ────────────────────────────────────────────────────────────
	relay := tools.NewRelay()
	mcpSource := tools.NewMCPSource()
	defer mcpSource.Close()
	for _, server := range cfg.Tools.Servers {
		serverCfg := tools.ServerConfig{
			Name:      server.Name,
			Transport: server.Transport,
			Command:   server.Command,
			URL:       server.URL,
			Env:       server.Env,
		}
		if err := mcpSource.RegisterServer(ctx, serverCfg, relay); err != nil {
			slog.Error("failed to register tool server", "server", server.Name, "err", err)
			return 1
		}
		slog.Info("tool server registered", "server", server.Name, "transport", server.Transport)
	}

	// ── Audio pipeline ────────────────────────────────────────────────────────
	pcmProducer, err := capture.NewPCMProducer(func() (io.ReadCloser, error) {
		return os.Stdin, nil
	}, cfg.Probe.SampleRate, captureFrameMs)
	if err != nil {
		slog.Error("failed to build capture producer", "err", err)
		return 1
	}

	// Capability selection happens once at startup. A remote Opus packet
	// source would plug in as the fallback producer here; with none
	// configured, a stdin failure is fatal.
	producer, err := capture.Select(ctx, pcmProducer, nil)
	if err != nil {
		slog.Error("no usable capture source", "err", err)
		return 1
	}

	renderer := playback.NewWriterRenderer(os.Stdout, cfg.Session.SampleRate)
	queue := playback.New(renderer, playback.Config{SampleRate: cfg.Session.SampleRate}, nil)

	seg := segmenter.New(segmenter.Config{
		SilenceTimeout:    time.Duration(cfg.Segmenter.SilenceTimeoutMs) * time.Millisecond,
		Retention:         time.Duration(cfg.Segmenter.RetentionMs) * time.Millisecond,
		SilenceThreshold:  cfg.Segmenter.SilenceThreshold,
		ActivityThreshold: cfg.Segmenter.ActivityThreshold,
		MinFrames:         cfg.Segmenter.MinFrames,
		NoiseSuppression:  cfg.Segmenter.NoiseSuppression,
	})

	gate := wake.New(wakeProbe, wake.Config{
		Phrase:            cfg.Wake.Phrase,
		Aliases:           cfg.Wake.Aliases,
		Cooldown:          time.Duration(cfg.Wake.CooldownMs) * time.Millisecond,
		MinDuration:       time.Duration(cfg.Segment.MinMs) * time.Millisecond,
		MaxDuration:       time.Duration(cfg.Segment.MaxMs) * time.Millisecond,
		PhoneticMatch:     cfg.Wake.PhoneticMatch,
		PhoneticThreshold: cfg.Wake.PhoneticThreshold,
		SampleRate:        cfg.Probe.SampleRate,
	}, nil)

	ctl, err := controller.New(controller.Deps{
		Producer:  producer,
		Segmenter: seg,
		Gate:      gate,
		Channel:   agentChannel,
		Queue:     queue,
		Relay:     relay,
		Session: channel.SessionConfig{
			Voice:        cfg.Session.Voice,
			Instructions: cfg.Session.Instructions,
			SampleRate:   cfg.Session.SampleRate,
		},
	})
	if err != nil {
		slog.Error("failed to initialise controller", "err", err)
		return 1
	}

	if err := ctl.Start(ctx); err != nil {
		slog.Error("failed to start controller", "err", err)
		return 1
	}

	slog.Info("listening for wake phrase — press Ctrl+C to shut down")

	// ── Serve until shutdown ──────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(closeCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-ctl.Done():
			if ctl.State() == controller.StateFailed {
				return fmt.Errorf("controller failed: %s", ctl.FailureReason())
			}
			return nil
		}
	})

	// Relay state transitions to the log until shutdown.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case tr := <-ctl.Transitions():
				slog.Debug("session state", "from", tr.From, "to", tr.To, "reason", tr.Reason)
			}
		}
	})

	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down…")

	if err := ctl.Stop(shutdownCtx); err != nil {
		slog.Warn("controller stop error", "err", err)
	}
	if err := shutdownObs(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProbe constructs the configured wake-word probe. The returned closer is
// non-nil for backends holding local resources (the whisper.cpp model).
func buildProbe(cfg config.ProbeConfig) (probe.Transcriber, io.Closer, error) {
	switch cfg.Provider {
	case "whisper":
		var opts []probewhisper.Option
		if cfg.Language != "" {
			opts = append(opts, probewhisper.WithLanguage(cfg.Language))
		}
		p, err := probewhisper.New(cfg.Model, opts...)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil

	default: // validated to "openai" at load time
		var opts []probeopenai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, probeopenai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Language != "" {
			opts = append(opts, probeopenai.WithLanguage(cfg.Language))
		}
		p, err := probeopenai.New(cfg.APIKey, cfg.Model, opts...)
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	}
}

func channelOptions(cfg config.ChannelConfig) []channelopenai.Option {
	var opts []channelopenai.Option
	if cfg.Model != "" {
		opts = append(opts, channelopenai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, channelopenai.WithBaseURL(cfg.BaseURL))
	}
	return opts
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
