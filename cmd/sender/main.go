package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"diodesync/internal/sender"
)

func main() {
	folder := flag.String("folder", "", "Source folder to sync (required)")
	dest := flag.String("dest", "", "Receiver address, host:port (required)")
	chunkSize := flag.Int("chunk-size", 1400, "Total datagram size including header")
	limit := flag.Int("limit", 0, "Max bytes/sec, 0 = unlimited")
	repeats := flag.Int("repeats", 3, "Number of times each archive is fully replayed")
	interval := flag.Int("interval", 30, "Seconds between sync cycles")
	logLevel := flag.String("log-level", "info", "Log level: debug/info/warn/error")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	setLogLevel(*logLevel)

	if *folder == "" {
		log.Fatal().Msg("--folder is required")
	}
	if *dest == "" {
		log.Fatal().Msg("--dest is required")
	}

	destAddr, err := net.ResolveUDPAddr("udp", *dest)
	if err != nil {
		log.Fatal().Err(err).Str("dest", *dest).Msg("resolving destination address")
	}

	fs, err := sender.New(sender.Config{
		Root:              *folder,
		Dest:              destAddr,
		ChunkSize:         *chunkSize,
		MaxBytesPerSecond: *limit,
		TransmitRepeats:   *repeats,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("constructing folder sender")
	}
	defer fs.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(*interval) * time.Second)
	defer ticker.Stop()

	log.Info().Str("folder", *folder).Str("dest", *dest).Int("interval", *interval).Msg("sender starting")

	runCycle(fs)
	for {
		select {
		case <-ticker.C:
			runCycle(fs)
		case <-sigCh:
			log.Info().Msg("shutting down")
			return
		}
	}
}

func runCycle(fs *sender.FolderSender) {
	if err := fs.PerformSync(); err != nil {
		log.Error().Err(err).Msg("sync cycle failed")
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
