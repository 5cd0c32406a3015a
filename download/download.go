// Package download is the orchestrator: it owns the metainfo, the job
// queue, the output file, and the worker pool, and exposes the single
// entry point the CLI calls.
package download

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rsmoorthy/rm/config"
	"github.com/rsmoorthy/rm/conn"
	"github.com/rsmoorthy/rm/engine"
	"github.com/rsmoorthy/rm/metainfo"
	"github.com/rsmoorthy/rm/peer"
	"github.com/rsmoorthy/rm/peerid"
	"github.com/rsmoorthy/rm/tracker"
)

// Download runs the whole leech: fetch the tracker, build one job per
// piece, create the destination file, spawn workers, and wait for
// completion. It returns the first fatal error (tracker rejection,
// metainfo problems, or engine.ErrStalledDownload); a single lost peer
// never fails the download by itself.
func Download(torrentPath string, cfg config.Config) (err error) {
	mi, err := metainfo.Open(torrentPath)
	if err != nil {
		return fmt.Errorf("download: opening metainfo: %w", err)
	}
	if err := mi.Validate(); err != nil {
		return fmt.Errorf("download: invalid metainfo: %w", err)
	}

	id, err := peerid.Generate()
	if err != nil {
		return fmt.Errorf("download: generating peer id: %w", err)
	}

	peers, err := fetchPeers(mi, id, cfg.TrackerTimeout)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if len(peers) == 0 {
		return errors.New("download: tracker returned no peers")
	}

	jobs := buildJobs(mi)

	outPath := outputPath(cfg.DestDir, mi.Name)
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("download: creating output file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	q := engine.NewQueue(jobs, peers, out, mi.PieceLength, cfg.ShowProgress)
	defer q.Stop()

	workerCount := workerCount(len(peers), cfg.Workers)
	log.Printf("downloading %s: %d pieces, %d peers, %d workers", mi.Name, len(jobs), len(peers), workerCount)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.RunWorker(q, conn.Connect, mi.InfoHash, id)
		}()
	}
	wg.Wait()

	if !q.Done() {
		return fmt.Errorf("download: %w: %d pieces still pending", engine.ErrStalledDownload, q.Pending())
	}
	return nil
}

func fetchPeers(mi *metainfo.Metainfo, id [20]byte, timeout time.Duration) ([]peer.Peer, error) {
	if timeout <= 0 {
		timeout = config.Default.TrackerTimeout
	}
	client := tracker.New(timeout)
	return client.Announce(mi.Announce, mi.InfoHash, id, 6881, mi.TotalSize)
}

func buildJobs(mi *metainfo.Metainfo) []*engine.Job {
	jobs := make([]*engine.Job, mi.NumPieces())
	for i := range jobs {
		jobs[i] = &engine.Job{
			Index: uint32(i),
			Hash:  mi.PieceHashes[i],
			Size:  uint32(mi.PieceSize(i)),
		}
	}
	return jobs
}

func outputPath(destDir, name string) string {
	if destDir == "" {
		destDir = "."
	}
	return destDir + string(os.PathSeparator) + name
}

// workerCount is min(n_peers, available_parallelism), with an explicit
// override for callers (and the CLI's -workers flag) that want to pin
// it.
func workerCount(nPeers, override int) int {
	if override > 0 {
		if override < nPeers {
			return override
		}
		return nPeers
	}
	parallelism := runtime.GOMAXPROCS(0)
	if nPeers < parallelism {
		return nPeers
	}
	return parallelism
}
