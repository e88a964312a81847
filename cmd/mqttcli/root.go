package main

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// Flags shared by every subcommand. Bound to viper so they can also be set
// via config file or MQTTCLI_* environment variables.
var (
	broker       string
	clientID     string
	username     string
	password     string
	keepAlive    int
	cleanSession bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "mqttcli",
	Short: "A command-line client for MQTT 3.1.1 brokers",
	Long: `mqttcli connects to an MQTT 3.1.1 broker and lets you publish or
subscribe to topics from the command line.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.mqttcli.yaml)")
	flags.StringVarP(&broker, "broker", "b", "tcp://localhost:1883", "MQTT broker URI (tcp://, tls://, ws://, wss://)")
	flags.StringVarP(&clientID, "client-id", "i", "", "MQTT client identifier (random if empty)")
	flags.StringVarP(&username, "username", "u", "", "username for authentication")
	flags.StringVarP(&password, "password", "P", "", "password for authentication")
	flags.IntVar(&keepAlive, "keep-alive", 60, "keep-alive interval in seconds")
	flags.BoolVar(&cleanSession, "clean-session", true, "start a clean session")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	for _, name := range []string{"broker", "client-id", "username", "password", "keep-alive", "clean-session"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// initConfig reads in a config file and environment variables, if set, so
// that flags can be overridden without retyping them on every invocation.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			log.Debugf("could not determine home directory: %v", err)
			return
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".mqttcli")
	}

	viper.SetEnvPrefix("mqttcli")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	}

	if viper.IsSet("broker") {
		broker = viper.GetString("broker")
	}
	if viper.IsSet("client-id") {
		clientID = viper.GetString("client-id")
	}
	if viper.IsSet("username") {
		username = viper.GetString("username")
	}
	if viper.IsSet("password") {
		password = viper.GetString("password")
	}
	if viper.IsSet("keep-alive") {
		keepAlive = viper.GetInt("keep-alive")
	}
	if viper.IsSet("clean-session") {
		cleanSession = viper.GetBool("clean-session")
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
