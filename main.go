package main

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"scrawl/wordpack"
)

func main() {
	config := MustLoadConfig()
	if err := SetupLogOutput(config.LogDir); err != nil {
		log.Fatal().Err(err).Msg("Could not open log output")
	}
	packs, err := wordpack.LoadDir(config.WordPackDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", config.WordPackDir).Msg("Could not load word packs")
	}
	if len(packs) == 0 {
		log.Fatal().Str("dir", config.WordPackDir).Msg("Word pack directory is empty")
	}
	LogLoadedWordPacks(len(packs))

	server := NewGameServer(packs)
	go server.Run(context.Background())

	LogStartedServer(config.Port)
	if err := http.ListenAndServe(":"+config.Port, NewHTTPServer(server, config.StaticDir)); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
