// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goxkit/mqactor"
	"github.com/spf13/cobra"
)

func newPublishCmd(flags *globalFlags) *cobra.Command {
	var (
		routingKey string
		headers    map[string]string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "publish <json>",
		Short: "Publish one JSON message to the actor exchange",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[0])) {
				return fmt.Errorf("payload is not valid JSON")
			}

			cfg, log, err := flags.load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			sup, err := connect(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer sup.Close()

			h := make(map[string]any, len(headers))
			for k, v := range headers {
				h[k] = v
			}

			producer := mqactor.NewProducer(sup)
			if err := producer.SendMessage(ctx, json.RawMessage(args[0]), h, routingKey); err != nil {
				return err
			}

			log.WithField("exchange", sup.Config().Exchange).Info("message published")
			return nil
		},
	}

	cmd.Flags().StringVarP(&routingKey, "routing-key", "r", "", "Routing key, defaults to the actor routing key")
	cmd.Flags().StringToStringVarP(&headers, "header", "H", nil, "Message header as key=value, repeatable")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall publish timeout")
	return cmd
}

func newHealthCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Connect and check that the actor queue exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			sup, err := connect(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer sup.Close()

			if err := sup.HealthCheck(ctx); err != nil {
				return err
			}

			fmt.Printf("%s: %s\n", sup.Config().QueueName, sup.State())
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall check timeout")
	return cmd
}
