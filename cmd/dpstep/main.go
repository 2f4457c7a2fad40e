package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := RootCmd.Execute(); err != nil {
		log.Errorln(err)
		os.Exit(1)
	}
}
