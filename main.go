package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/rssdash/cmd"
)

func main() {
	if err := cmd.RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
