package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/rpy_stream/internal/config"
	"github.com/relabs-tech/rpy_stream/internal/orientation"
	"github.com/relabs-tech/rpy_stream/internal/sink"
	"github.com/relabs-tech/rpy_stream/internal/stream"
	"github.com/relabs-tech/rpy_stream/internal/transport"
)

// buildSinks assembles the console sink plus the optional MQTT and CSV
// sinks the configuration asks for. The returned cleanup releases them.
func buildSinks(cfg *config.Config, estimator string) (sink.Sink, func(), error) {
	interval := time.Duration(cfg.ConsoleLogInterval) * time.Millisecond
	sinks := sink.Multi{sink.NewConsole(os.Stdout, estimator, interval)}
	var closers []func()

	if cfg.MQTTBroker != "" {
		client, err := sink.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsumer)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { client.Disconnect(250) })
		sinks = append(sinks, sink.NewMQTT(client, cfg.OrientationTopic(estimator)))
		log.Printf("consumer %s: publishing to MQTT topic %s", estimator, cfg.OrientationTopic(estimator))
	}

	if cfg.CSVOutput != "" {
		c, err := sink.OpenCSV(cfg.CSVOutput, estimator)
		if err != nil {
			for _, f := range closers {
				f()
			}
			return nil, nil, err
		}
		closers = append(closers, func() { c.Close() })
		sinks = append(sinks, c)
		log.Printf("consumer %s: logging to %s", estimator, cfg.CSVOutput)
	}

	cleanup := func() {
		for _, f := range closers {
			f()
		}
	}
	return sinks, cleanup, nil
}

// RunConsumer subscribes to the producer's stream and runs the named
// estimator over every record it receives.
func RunConsumer(ctx context.Context, cfg *config.Config, estimator string) error {
	if estimator == "" {
		estimator = cfg.Estimator
	}
	est, err := orientation.New(estimator, orientation.Options{Beta: cfg.MadgwickBeta})
	if err != nil {
		return err
	}

	out, cleanup, err := buildSinks(cfg, est.Name())
	if err != nil {
		return fmt.Errorf("consumer %s: %w", est.Name(), err)
	}
	defer cleanup()

	records := stream.New[string]()
	cur := records.Subscribe()
	sub := transport.NewSubscriber(cfg.StreamURL,
		time.Duration(cfg.StreamReconnectInterval)*time.Millisecond, records)
	c := NewConsumer(est, out)

	log.Printf("consumer %s: subscribing to %s", est.Name(), cfg.StreamURL)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer records.Close()
		return sub.Run(ctx)
	})
	g.Go(func() error { return c.Run(ctx, cur) })
	err = g.Wait()

	st := c.Stats()
	log.Printf("consumer %s: %d estimates, %d malformed, %d degenerate, %d sink errors",
		est.Name(), st.Handled, st.Malformed, st.Degenerate, st.SinkErrors)
	return err
}
