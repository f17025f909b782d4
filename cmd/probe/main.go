// Command probe is a headless client: it publishes a synthetic producer and
// subscribes to it over the signaling protocol, then reports the ids.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Cast/internal/bridge"
	"github.com/dkeye/Cast/internal/media"
)

func main() {
	url := pflag.StringP("url", "u", "ws://127.0.0.1:8000/ws", "signaling websocket url")
	kind := pflag.StringP("kind", "k", "video", "kind to publish: audio or video")
	source := pflag.StringP("source", "s", "camera", "capture to announce: camera or screen")
	timeout := pflag.DurationP("timeout", "t", 10*time.Second, "timeout of every signaling request")
	forceTCP := pflag.Bool("force-tcp", false, "ask the server for ICE over TCP")
	publishOnly := pflag.Bool("publish-only", false, "publish and keep the producer alive until interrupted")
	verbose := pflag.BoolP("verbose", "v", false, "debug logging")
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	k, err := media.ParseKind(*kind)
	if err != nil {
		log.Fatal().Err(err).Str("kind", *kind).Msg("bad --kind")
	}

	switch {
	case *source != "camera" && *source != "screen":
		log.Fatal().Str("source", *source).Msg("bad --source")
	case *source == "screen" && k != media.KindVideo:
		log.Fatal().Msg("--source screen publishes video only")
	}
	src := bridge.Source{Kind: k, Label: *source}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := bridge.Options{Timeout: *timeout, ForceTCP: *forceTCP}
	pub, err := dial(ctx, *url, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("publisher dial")
	}
	defer pub.Close()

	if *publishOnly {
		p, err := pub.Publish(ctx, src)
		if err != nil {
			log.Fatal().Err(err).Msg("publish")
		}
		log.Info().Str("producer", p.ID).Msg("publishing, interrupt to stop")
		select {
		case <-ctx.Done():
		case <-pub.Done():
		}
		return
	}

	sub, err := dial(ctx, *url, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("subscriber dial")
	}
	defer sub.Close()
	if err := sub.LoadDevice(ctx); err != nil {
		log.Fatal().Err(err).Msg("subscriber load device")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := pub.Publish(gctx, src)
		if err != nil {
			return err
		}
		log.Info().Str("producer", p.ID).Str("kind", string(p.Kind)).Msg("published")
		return nil
	})
	g.Go(func() error {
		var producerID string
		select {
		case np := <-sub.NewProducers():
			producerID = np.ID
		case <-gctx.Done():
			return gctx.Err()
		case <-time.After(*timeout):
			log.Warn().Msg("no newProducer seen, subscribing to the latest producer")
		}
		c, err := sub.Subscribe(gctx, producerID)
		if err != nil {
			return err
		}
		log.Info().Str("consumer", c.ID).Str("producer", c.ProducerID).Str("kind", string(c.Kind)).Msg("subscribed")
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("probe failed")
	}
	log.Info().Msg("probe succeeded")
}

func dial(ctx context.Context, url string, opts bridge.Options) (*bridge.Bridge, error) {
	device, err := bridge.NewSyntheticDevice()
	if err != nil {
		return nil, err
	}
	return bridge.Dial(ctx, url, device, opts)
}
