package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"diodesync/internal/receiver"
)

func main() {
	folder := flag.String("folder", "", "Destination folder to receive into (required)")
	port := flag.Int("port", 9000, "UDP port to listen on")
	keepArchives := flag.Bool("keep-archives", false, "Retain completed archives instead of deleting them")
	logLevel := flag.String("log-level", "info", "Log level: debug/info/warn/error")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	setLogLevel(*logLevel)

	if *folder == "" {
		log.Fatal().Msg("--folder is required")
	}

	fr, err := receiver.New(receiver.Config{
		Root:                       *folder,
		DeleteArchivesOnCompletion: !*keepArchives,
	}, *port)
	if err != nil {
		log.Fatal().Err(err).Msg("constructing folder receiver")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		fr.Close()
	}()

	log.Info().Str("folder", *folder).Int("port", *port).Msg("receiver listening")
	if err := fr.Run(); err != nil {
		log.Fatal().Err(err).Msg("receiver stopped")
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		log.Fatal().Str("level", level).Msg("invalid log level")
	}
}
