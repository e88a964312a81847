package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gonzalop/mq"
)

var (
	subTopic string
	subQoS   int
)

var subCmd = &cobra.Command{
	Use:   "sub",
	Short: "Subscribe to a topic and print received messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		if subQoS < 0 || subQoS > 2 {
			fatalf("--qos must be between 0 and 2, got %d", subQoS)
		}

		client, err := dialFromFlags()
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		token := client.Subscribe(subTopic, mq.QoS(subQoS), func(c *mq.Client, msg mq.Message) {
			log.Infof("%s: %s", msg.Topic, string(msg.Payload))
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := token.Wait(ctx); err != nil {
			return err
		}

		log.Infof("subscribed to %q, waiting for messages (ctrl-c to exit)", subTopic)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		return nil
	},
}

func init() {
	rootCmd.AddCommand(subCmd)

	flags := subCmd.Flags()
	flags.StringVarP(&subTopic, "topic", "t", "", "topic filter to subscribe to (required)")
	flags.IntVarP(&subQoS, "qos", "q", 0, "requested quality of service (0, 1, or 2)")
	_ = subCmd.MarkFlagRequired("topic")
}
