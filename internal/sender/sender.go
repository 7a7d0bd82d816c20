// Package sender implements the folder sender: the one-way side of
// the sync protocol that walks a source tree, diffs it against what
// has already been delivered, and blasts the result across a UDP
// socket with no expectation of acknowledgement.
package sender

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"diodesync/internal/protocol"
	"diodesync/internal/snapshot"
	"diodesync/internal/store"
	"diodesync/internal/tarball"
	"diodesync/internal/walker"
)

// Config is the construction-time state of a FolderSender.
type Config struct {
	// Root is the source directory walked every sync cycle. It must
	// already exist and be a directory.
	Root string
	// Dest is the receiver's UDP address.
	Dest *net.UDPAddr
	// ChunkSize is the total wire size of each fragment, header
	// included. Must exceed protocol.HeaderSize.
	ChunkSize int
	// MaxBytesPerSecond caps outbound throughput; 0 means unlimited.
	MaxBytesPerSecond int
	// TransmitRepeats is how many times the full fragment sequence of
	// one archive is replayed; must be >= 1.
	TransmitRepeats int
}

// FolderSender owns one source tree's sync state: the outbound socket
// and the persisted "already sent" set.
type FolderSender struct {
	cfg   Config
	conn  *net.UDPConn
	state *store.SenderState
}

// New validates cfg, opens an outbound UDP socket, and constructs a
// FolderSender. The sender's persistent store lives at
// "<root>/.sender_sync_data".
func New(cfg Config) (*FolderSender, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("sender: stat root %s: %w", cfg.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sender: root %s is not a directory", cfg.Root)
	}
	if cfg.ChunkSize <= protocol.HeaderSize {
		return nil, protocol.ErrChunkSizeTooSmall
	}
	if cfg.TransmitRepeats < 1 {
		return nil, fmt.Errorf("sender: transmit repeats must be >= 1, got %d", cfg.TransmitRepeats)
	}

	conn, err := net.DialUDP("udp", nil, cfg.Dest)
	if err != nil {
		return nil, fmt.Errorf("sender: dial %s: %w", cfg.Dest, err)
	}

	return &FolderSender{
		cfg:   cfg,
		conn:  conn,
		state: store.NewSenderState(stateDBPath(cfg.Root)),
	}, nil
}

func stateDBPath(root string) string {
	return root + string(os.PathSeparator) + ".sender_sync_data"
}

// Close releases the sender's outbound socket.
func (fs *FolderSender) Close() error {
	return fs.conn.Close()
}

// PerformSync runs one full sync cycle: walk, diff, archive, emit,
// persist. A cycle with nothing changed returns immediately after the
// diff. It is not safe to call concurrently with itself.
func (fs *FolderSender) PerformSync() error {
	current, err := walker.Walk(fs.cfg.Root)
	if err != nil {
		return fmt.Errorf("sender: walk: %w", err)
	}

	sent, err := fs.state.Sent()
	if err != nil {
		return fmt.Errorf("sender: read sent set: %w", err)
	}

	changed := snapshot.Diff(current, sent)
	if len(changed) == 0 {
		log.Debug().Msg("no changes detected")
		return nil
	}
	log.Info().Int("files", len(changed)).Msg("changes detected")

	archivePath, err := tempArchivePath(fs.cfg.Root)
	if err != nil {
		return fmt.Errorf("sender: allocate temp archive: %w", err)
	}
	defer os.Remove(archivePath)

	includedPaths, err := tarball.Build(fs.cfg.Root, changed.Paths(), archivePath)
	if err != nil {
		return fmt.Errorf("sender: build archive: %w", err)
	}
	included := filterByPath(changed, includedPaths)

	chunker, err := protocol.NewFileChunker(archivePath, fs.cfg.ChunkSize)
	if err != nil {
		return fmt.Errorf("sender: construct chunker: %w", err)
	}
	log.Info().
		Str("hash", hashHex(chunker.Hash())).
		Uint32("fragments", chunker.Total()).
		Int("repeats", fs.cfg.TransmitRepeats).
		Msg("transmitting archive")

	var totalBytes int64
	start := time.Now()
	for c := 0; c < fs.cfg.TransmitRepeats; c++ {
		log.Info().Int("copy", c+1).Int("of", fs.cfg.TransmitRepeats).Msg("sending copy")
		n, err := fs.emitOneCopy(chunker)
		if err != nil {
			return fmt.Errorf("sender: emit copy %d: %w", c, err)
		}
		totalBytes += n
	}
	elapsed := time.Since(start).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(totalBytes) / elapsed
	}
	log.Info().Int64("bytes", totalBytes).Float64("bytes_per_sec", rate).Msg("transmission complete")

	merged := snapshot.Union(sent, included)
	if err := fs.state.SetSent(merged); err != nil {
		return fmt.Errorf("sender: persist sent set: %w", err)
	}

	return nil
}

// emitOneCopy replays the chunker's full fragment sequence once,
// index-ascending, pacing via the naive sleep-per-datagram rate
// limiter when one is configured. It returns the number of bytes
// written to the socket.
func (fs *FolderSender) emitOneCopy(chunker *protocol.FileChunker) (int64, error) {
	enum, err := chunker.Enumerate()
	if err != nil {
		return 0, err
	}
	defer enum.Close()

	var sent int64
	for {
		frag, err := enum.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sent, fmt.Errorf("sender: read fragment: %w", err)
		}
		if _, err := fs.conn.Write(frag); err != nil {
			return sent, fmt.Errorf("sender: write datagram: %w", err)
		}
		sent += int64(len(frag))
		log.Debug().Uint32("index", indexOf(frag)).Msg("fragment sent")
		fs.throttle(len(frag))
	}
	return sent, nil
}

func indexOf(frag []byte) uint32 {
	hdr, err := protocol.DecodeHeader(frag[:protocol.HeaderSize])
	if err != nil {
		return 0
	}
	return hdr.Index
}

// throttle sleeps long enough that average throughput does not
// exceed MaxBytesPerSecond. Drift is tolerated; the link is not
// real-time.
func (fs *FolderSender) throttle(n int) {
	if fs.cfg.MaxBytesPerSecond <= 0 {
		return
	}
	seconds := float64(n) / float64(fs.cfg.MaxBytesPerSecond)
	time.Sleep(time.Duration(seconds * float64(time.Second)))
}

func tempArchivePath(root string) (string, error) {
	f, err := os.CreateTemp(root, "diodesync-*.tar")
	if err != nil {
		return "", err
	}
	path := f.Name()
	f.Close()
	return path, nil
}

// filterByPath returns the subset of full entries in set whose
// RelPath appears in paths, used to compute "included" from the
// archive builder's actual result (which may have silently dropped
// vanished files).
func filterByPath(set snapshot.Set, paths []string) snapshot.Set {
	wanted := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		wanted[p] = struct{}{}
	}
	out := make(snapshot.Set, len(paths))
	for meta := range set {
		if _, ok := wanted[meta.RelPath]; ok {
			out[meta] = struct{}{}
		}
	}
	return out
}

func hashHex(h [protocol.HashSize]byte) string {
	hdr := protocol.Header{Hash: h}
	return hdr.HashHex()
}
