// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command kar creates, lists and extracts kar archives.
package main

import (
	"os"
	"os/user"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var silent bool

var rootCmd = &cobra.Command{
	Use:          "kar",
	Short:        "lz4 compressed asset archives",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&silent, "silent", "s", false, "only print errors")
}

func currentUserName() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

func logger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if silent {
		log.SetLevel(logrus.ErrorLevel)
	}
	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
