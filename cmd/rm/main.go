// Command rm is a single-file BitTorrent leecher: given a .torrent
// descriptor, it contacts the tracker, discovers peers, and downloads
// and verifies every piece of the described file into one output file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/rsmoorthy/rm/config"
	"github.com/rsmoorthy/rm/download"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("rm", flag.ContinueOnError)
	destDir := fs.String("d", ".", "destination directory")
	workers := fs.Int("workers", 0, "number of concurrent peer connections (0 = auto)")
	progress := fs.Bool("progress", true, "show a live progress bar")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Missing file argument")
		return 1
	}
	torrentPath := fs.Arg(0)
	// Flags may also follow the path, as in `rm file.torrent -d out`.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return 2
	}

	cfg := config.Default
	cfg.DestDir = *destDir
	cfg.Workers = *workers
	cfg.ShowProgress = *progress

	if err := download.Download(torrentPath, cfg); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		return 1
	}
	return 0
}

// describe surfaces the error kind, not just a generic message.
func describe(err error) string {
	var kind string
	switch {
	case errors.Is(err, os.ErrExist):
		kind = "OutputAlreadyExists"
	default:
		kind = "Error"
	}
	return fmt.Sprintf("%s: %v", kind, err)
}
