// Package receiver implements the folder receiver: an asynchronous
// datagram ingress paired with a single worker that owns every
// filesystem and persistent-store mutation, so the hot ingress path
// never blocks on disk.
package receiver

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"diodesync/internal/protocol"
	"diodesync/internal/store"
	"diodesync/internal/tarball"
)

// knownCompleteTTL and knownCompleteCleanup mirror the teacher's
// session-cache cadence; known_complete entries need no expiry of
// their own (a Complete archive never becomes incomplete again), so
// the interval is generous and exists only to bound memory.
const (
	knownCompleteTTL     = 30 * time.Minute
	knownCompleteCleanup = time.Hour
	knownCompleteSoftCap = 10

	// queueCapacity bounds the ingress-to-worker queue. spec.md permits
	// either a genuinely unbounded queue or a capped queue with an
	// explicit drop policy; this receiver takes the capped option so
	// ingress never blocks on the worker's slower store-backed path.
	queueCapacity = 8192
)

// Config is the construction-time state of a FolderReceiver.
type Config struct {
	// Root is the destination directory extraction targets and is
	// also where in-flight archives and the persistent store live.
	// It must already exist.
	Root string
	// DeleteArchivesOnCompletion removes a completed archive file
	// after successful extraction.
	DeleteArchivesOnCompletion bool
}

// FolderReceiver owns the UDP socket, the capped ingress-to-worker
// queue (drop-on-full, not block-on-full), and the worker goroutine's
// state (known_complete cache and persistent store handle).
type FolderReceiver struct {
	cfg   Config
	conn  *net.UDPConn
	state *store.ReceiverState
	queue chan []byte
	known *gocache.Cache
	stop  chan struct{}
	done  chan struct{}
}

// New validates cfg and binds a UDP listener on port. The receiver
// does not start processing until Run is called.
func New(cfg Config, port int) (*FolderReceiver, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("receiver: stat root %s: %w", cfg.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("receiver: root %s is not a directory", cfg.Root)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("receiver: listen on port %d: %w", port, err)
	}
	// Increase OS buffer to avoid drops during a fast, unthrottled burst.
	conn.SetReadBuffer(4 * 1024 * 1024)

	return &FolderReceiver{
		cfg:   cfg,
		conn:  conn,
		state: store.NewReceiverState(stateDBPath(cfg.Root)),
		queue: make(chan []byte, queueCapacity),
		known: gocache.New(knownCompleteTTL, knownCompleteCleanup),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}, nil
}

func stateDBPath(root string) string {
	return filepath.Join(root, ".receiver_sync_data")
}

// LocalAddr returns the bound UDP address, useful for tests that bind
// an ephemeral port.
func (fr *FolderReceiver) LocalAddr() net.Addr {
	return fr.conn.LocalAddr()
}

// Run starts the ingress loop (in the calling goroutine) and the
// worker loop (in a new goroutine), and blocks until Close is called
// or the socket errors out.
func (fr *FolderReceiver) Run() error {
	go fr.workerLoop()
	return fr.ingressLoop()
}

// Close stops both the ingress and worker loops and releases the
// socket. It blocks until the worker goroutine has returned; fragments
// still waiting in the queue at that point are not processed.
func (fr *FolderReceiver) Close() error {
	err := fr.conn.Close()
	close(fr.stop)
	<-fr.done
	return err
}

// ingressLoop owns the socket exclusively. It never touches disk: a
// datagram too short to hold a header is rejected with a log warning,
// everything else is handed to the worker's queue. The queue send is
// non-blocking: if the worker falls behind the capped queue fills, the
// fragment is dropped and logged rather than blocking ingress on the
// worker's slower open-transact-close store path. Reliability still
// comes from transmit_repeats and the next sync cycle, the same as
// any other dropped fragment.
func (fr *FolderReceiver) ingressLoop() error {
	buf := make([]byte, 65535)
	for {
		n, _, err := fr.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-fr.stop:
				return nil
			default:
				return fmt.Errorf("receiver: read datagram: %w", err)
			}
		}
		if n < protocol.HeaderSize {
			log.Warn().Int("len", n).Msg("dropping undersized fragment")
			continue
		}
		frag := make([]byte, n)
		copy(frag, buf[:n])
		select {
		case fr.queue <- frag:
		default:
			log.Warn().Int("len", n).Msg("worker queue full, dropping fragment")
		}
	}
}

// workerLoop is the sequential hot path: the only goroutine that
// touches the archive files and the persistent store.
func (fr *FolderReceiver) workerLoop() {
	defer close(fr.done)
	for {
		select {
		case <-fr.stop:
			return
		case frag := <-fr.queue:
			fr.handleFragment(frag)
		}
	}
}

func (fr *FolderReceiver) handleFragment(frag []byte) {
	hdr, err := protocol.DecodeHeader(frag[:protocol.HeaderSize])
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed fragment header")
		return
	}
	payload := frag[protocol.HeaderSize:]
	hexHash := hdr.HashHex()

	if _, found := fr.known.Get(hexHash); found {
		return
	}

	st, err := fr.state.Get(hexHash)
	if err != nil {
		log.Error().Err(err).Str("hash", hexHash).Msg("reading archive state")
		return
	}

	if st.Complete {
		fr.rememberComplete(hexHash)
		return
	}

	bs := st.Bitset
	if bs == nil {
		bs = protocol.NewBitset(hdr.Total)
	}

	already, err := bs.Get(hdr.Index)
	if err != nil {
		log.Warn().Err(err).Str("hash", hexHash).Uint32("index", hdr.Index).Msg("fragment index out of range")
		return
	}
	if already {
		log.Debug().Str("hash", hexHash).Uint32("index", hdr.Index).Msg("duplicate fragment")
		return
	}

	archivePath := fr.archivePath(hexHash)
	if err := writeFragment(archivePath, int64(hdr.Offset), payload); err != nil {
		log.Error().Err(err).Str("hash", hexHash).Msg("writing fragment payload")
		return
	}
	if err := bs.Set(hdr.Index, true); err != nil {
		log.Error().Err(err).Str("hash", hexHash).Msg("updating bitset")
		return
	}

	fr.logProgress(hexHash, bs)

	if bs.Cardinality() == hdr.Total {
		if err := fr.state.PutComplete(hexHash); err != nil {
			log.Error().Err(err).Str("hash", hexHash).Msg("persisting completion")
			return
		}
		fr.onComplete(hexHash, archivePath, hdr.Hash)
		return
	}

	if err := fr.state.PutInProgress(hexHash, bs); err != nil {
		log.Error().Err(err).Str("hash", hexHash).Msg("persisting progress")
	}
}

// onComplete verifies the finished archive's integrity, extracts it
// regardless of the outcome, and applies the deletion policy.
func (fr *FolderReceiver) onComplete(hexHash, archivePath string, want [protocol.HashSize]byte) {
	fr.rememberComplete(hexHash)

	got, err := protocol.HashFile(archivePath)
	if err != nil {
		log.Error().Err(err).Str("hash", hexHash).Msg("rehashing completed archive")
	} else if got != want {
		log.Warn().Str("hash", hexHash).Msg("archive integrity mismatch at completion; extracting anyway")
	}

	log.Info().Str("hash", hexHash).Msg("archive complete, extracting")
	if err := tarball.Extract(archivePath, fr.cfg.Root); err != nil {
		log.Error().Err(err).Str("hash", hexHash).Msg("extraction failed; archive retained")
		return
	}

	if fr.cfg.DeleteArchivesOnCompletion {
		if err := os.Remove(archivePath); err != nil {
			log.Warn().Err(err).Str("hash", hexHash).Msg("removing completed archive")
		}
	}
}

// rememberComplete records hexHash in the known_complete cache,
// applying the soft-cap eviction: once the cache grows past the cap
// it is reset to a singleton containing only the just-observed hash.
// This is a deliberately coarse, cheap eviction policy; exact sizing
// is not material.
func (fr *FolderReceiver) rememberComplete(hexHash string) {
	if fr.known.ItemCount() >= knownCompleteSoftCap {
		fr.known.Flush()
	}
	fr.known.SetDefault(hexHash, struct{}{})
}

func (fr *FolderReceiver) archivePath(hexHash string) string {
	return filepath.Join(fr.cfg.Root, hexHash+".tar")
}

// logProgress emits an info-level line each time cardinality crosses
// a 10%-of-total threshold, debug-level otherwise.
func (fr *FolderReceiver) logProgress(hexHash string, bs *protocol.Bitset) {
	card := bs.Cardinality()
	total := bs.Len()
	if total == 0 {
		return
	}
	if uint64(card)*10/uint64(total) != uint64(card-1)*10/uint64(total) {
		log.Info().Str("hash", hexHash).Uint32("received", card).Uint32("total", total).Msg("archive progress")
		return
	}
	log.Debug().Str("hash", hexHash).Uint32("received", card).Uint32("total", total).Msg("fragment written")
}

// writeFragment opens path for positioned writes, creating it if
// absent, and writes payload at offset. O_RDWR rather than O_APPEND
// is required so the offset is honored rather than ignored in favor
// of end-of-file, which append mode forces on some platforms.
func writeFragment(path string, offset int64, payload []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("receiver: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteAt(payload, offset); err != nil {
		return fmt.Errorf("receiver: write %s at %d: %w", path, offset, err)
	}
	return nil
}
