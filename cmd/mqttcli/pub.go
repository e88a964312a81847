package main

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gonzalop/mq"
)

var (
	pubTopic   string
	pubMessage string
	pubFile    string
	pubQoS     int
	pubRetain  bool
)

var pubCmd = &cobra.Command{
	Use:   "pub",
	Short: "Publish a message to a topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := []byte(pubMessage)
		if pubFile != "" {
			data, err := os.ReadFile(pubFile)
			if err != nil {
				return err
			}
			payload = data
		}

		if pubQoS < 0 || pubQoS > 2 {
			fatalf("--qos must be between 0 and 2, got %d", pubQoS)
		}

		client, err := dialFromFlags()
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		token := client.Publish(pubTopic, payload, mq.WithQoS(mq.QoS(pubQoS)), mq.WithRetain(pubRetain))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := token.Wait(ctx); err != nil {
			return err
		}
		if token.Dropped() {
			log.Warnf("message to %q was dropped (outgoing queue full)", pubTopic)
		} else {
			log.Infof("published to %q (qos=%d)", pubTopic, pubQoS)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pubCmd)

	flags := pubCmd.Flags()
	flags.StringVarP(&pubTopic, "topic", "t", "", "topic to publish to (required)")
	flags.StringVarP(&pubMessage, "message", "m", "", "message payload")
	flags.StringVarP(&pubFile, "file", "f", "", "read payload from file instead of --message")
	flags.IntVarP(&pubQoS, "qos", "q", 0, "quality of service (0, 1, or 2)")
	flags.BoolVarP(&pubRetain, "retain", "r", false, "set the retain flag")
	_ = pubCmd.MarkFlagRequired("topic")
}
