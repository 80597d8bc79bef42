// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package main

import (
	"context"
	"encoding/json"

	"github.com/goxkit/mqactor"
	"github.com/goxkit/mqactor/dedup"
	"github.com/goxkit/mqactor/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newConsumeCmd(flags *globalFlags) *cobra.Command {
	var echoHeader string

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume the actor queue until interrupted",
		Long: `Connect the actor, consume its queue and log every payload.
Redeliveries are dropped through the dedup store and messages carrying an
echo marker written by our own sync are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			store, err := dedup.Open(ctx, cfg.DedupBackend, cfg.DedupURL())
			if err != nil {
				return err
			}
			defer store.Close()

			go dedup.Sweep(ctx, store, cfg.DedupTTL)

			sup, err := connect(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer sup.Close()

			d := mqactor.NewDispatcher()
			if err := d.RegisterByRoutingKey(cfg.RoutingKey, &json.RawMessage{}, logPayload(log)); err != nil {
				return err
			}

			handler := dedup.Chain(d.Handle,
				dedup.Idempotent(store, cfg.DedupTTL),
				dedup.SkipEcho(store, dedup.HeaderKey(echoHeader)),
			)

			consumer := mqactor.NewConsumer(sup)
			tag, err := consumer.StartConsuming(handler)
			if err != nil {
				return err
			}

			go func() {
				router := server.NewRouter(sup, log, server.DefaultCheckTimeout)
				if err := server.Serve(ctx, cfg.HealthAddr, router, log); err != nil {
					log.WithError(err).Error("health server stopped")
				}
			}()

			log.WithFields(logrus.Fields{
				"queue":      sup.Config().QueueName,
				"routingKey": sup.Config().RoutingKey,
				"backend":    cfg.DedupBackend,
			}).Info("consuming, press Ctrl+C to stop")

			<-ctx.Done()

			log.Info("stopping consumer")
			if err := consumer.CancelConsumer(tag); err != nil {
				log.WithError(err).Warn("failed to cancel consumer")
			}
			consumer.Wait()

			return nil
		},
	}

	cmd.Flags().StringVar(&echoHeader, "echo-header", "x-silo-echo-key", "Header naming the echo marker of a delivery")
	return cmd
}

func logPayload(log *logrus.Entry) mqactor.ConsumerHandler {
	return func(ctx context.Context, msg any, metadata *mqactor.DeliveryMetadata) error {
		payload := msg.(*json.RawMessage)
		log.WithContext(ctx).WithFields(logrus.Fields{
			"messageID":   metadata.MessageID,
			"routingKey":  metadata.RoutingKey,
			"redelivered": metadata.Redelivered,
			"payload":     string(*payload),
		}).Info("message received")
		return nil
	}
}
