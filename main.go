package main

import (
	"os"

	"github.com/launchdarkly/egg-mock/bootstrap"

	_ "github.com/launchdarkly/egg-mock/internal/testegg"
)

func main() {
	os.Exit(bootstrap.Run(os.Args[1:]))
}
