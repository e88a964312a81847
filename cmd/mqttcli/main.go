// Command mqttcli is a small command-line client for talking to an MQTT
// 3.1.1 broker, built on top of the github.com/gonzalop/mq package.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
