// Command framedump runs a captured instrument byte stream through the framing
// engine offline and prints every accepted frame with its decoded samples.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/hadefuwa/stirling-engine/internal/framing"
	"github.com/hadefuwa/stirling-engine/internal/stream"
)

type options struct {
	chunkSize int
	ceiling   int
	history   int
	policy    framing.ResyncPolicy
	asJSON    bool
	port      string
}

func main() {
	file := flag.String("file", "", "Capture file to decode (binary, or hex text with -hex); stdin when empty")
	hexInput := flag.Bool("hex", false, "Input is hex text; whitespace and 0x prefixes are ignored")
	chunk := flag.Int("chunk", 32, "Bytes fed to the engine per step")
	ceiling := flag.Int("ceiling", framing.DefaultCeiling, "Accumulator ceiling in bytes")
	policyName := flag.String("resync", "skip_frame", "Resync policy: skip_frame or next_byte")
	asJSON := flag.Bool("json", false, "Print one JSON event per line")
	flag.Parse()

	policy, err := framing.ParseResyncPolicy(*policyName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var in io.Reader = os.Stdin
	name := "stdin"
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
		name = *file
	}

	data, err := io.ReadAll(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}

	if *hexInput {
		data, err = parseHex(string(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error decoding hex input: %v\n", err)
			os.Exit(1)
		}
	}

	opts := options{
		chunkSize: *chunk,
		ceiling:   *ceiling,
		history:   framing.DefaultHistoryCapacity,
		policy:    policy,
		asJSON:    *asJSON,
		port:      name,
	}

	stats, err := dump(data, os.Stdout, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "bytes=%d candidates=%d valid=%d invalid=%d no_marker_resets=%d short_tail_resets=%d bytes_dropped=%d\n",
		len(data), stats.Candidates, stats.ValidFrames, stats.InvalidTrailers,
		stats.NoMarkerResets, stats.ShortTailResets, stats.BytesDropped)
}

// dump feeds data to the engine in fixed-size chunks, as a serial read loop
// would, and writes each accepted frame to w
func dump(data []byte, w io.Writer, opts options) (framing.ScanStats, error) {
	if opts.chunkSize <= 0 {
		opts.chunkSize = len(data)
	}

	acc := framing.NewAccumulator(opts.ceiling)
	scanner := framing.NewScanner(opts.policy)
	history := framing.NewHistory(opts.history)
	enc := json.NewEncoder(w)

	var sequence uint64
	for offset := 0; offset < len(data); offset += opts.chunkSize {
		end := min(offset+opts.chunkSize, len(data))
		acc.Append(data[offset:end])

		for _, f := range scanner.Scan(acc) {
			sequence++
			ev := stream.NewEvent(opts.port, f, history.Push(f), sequence, time.Now())

			if opts.asJSON {
				if err := enc.Encode(ev); err != nil {
					return scanner.Stats(), err
				}
				continue
			}

			if _, err := fmt.Fprintf(w, "#%d %s\n", ev.Sequence, ev.FullPacket); err != nil {
				return scanner.Stats(), err
			}
			for _, s := range ev.Samples {
				if _, err := fmt.Fprintf(w, "  %s\n", s); err != nil {
					return scanner.Stats(), err
				}
			}
		}
	}

	return scanner.Stats(), nil
}

// parseHex decodes hex text such as "55 55 0x01 ..." into bytes
func parseHex(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, "0x", "")
	s = strings.ReplaceAll(s, "0X", "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ',' {
			return -1
		}
		return r
	}, s)
	return hex.DecodeString(s)
}
