package main

import (
	"os"

	"github.com/blacktop/newpost/cmd"
	"github.com/blacktop/newpost/internal/logutil"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if !cmd.Alerted(err) {
			logutil.Errorf("%v", err)
		}
		os.Exit(1)
	}
}
