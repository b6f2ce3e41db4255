package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCmd(buildApp).Execute(); err != nil {
		log.Error().Err(err).Msg("digest command failed")
		os.Exit(1)
	}
}
