package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gonzalop/mq"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a broker and report the result",
	Long: `Connect dials the configured broker, performs the CONNECT/CONNACK
handshake, and disconnects cleanly. Useful for verifying broker
reachability and credentials.`,
	Run: func(cmd *cobra.Command, args []string) {
		client, err := dialFromFlags()
		if err != nil {
			fatalf("connect failed: %v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		log.Infof("connected to %s (connected=%v)", broker, client.IsConnected())
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

// dialFromFlags builds a mq.Client from the shared root flags.
func dialFromFlags() (*mq.Client, error) {
	opts := []mq.Option{
		mq.WithKeepAlive(time.Duration(keepAlive) * time.Second),
		mq.WithCleanSession(cleanSession),
		mq.WithLogger(mq.NewLogger(log.StandardLogger())),
	}

	if clientID != "" {
		opts = append(opts, mq.WithClientID(clientID))
	} else {
		opts = append(opts, mq.WithRandomClientID())
	}

	if username != "" {
		opts = append(opts, mq.WithCredentials(username, password))
	}

	return mq.Dial(broker, opts...)
}
