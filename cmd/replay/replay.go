package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"worldsmith.dev/internal/network"
	framelog "worldsmith.dev/internal/persistence/log"
	"worldsmith.dev/internal/protocol"
)

type dirStats struct {
	Frames uint64
	Bytes  uint64
	Kinds  map[protocol.Kind]uint64
	Drops  map[string]uint64
}

type report struct {
	Files   int
	Checked uint64
	In      dirStats
	Out     dirStats
}

func newDirStats() dirStats {
	return dirStats{Kinds: map[protocol.Kind]uint64{}, Drops: map[string]uint64{}}
}

// replay re-decodes every recorded frame with today's decoders and checks
// the outcome matches what was recorded: same kind for decoded frames, same
// error code for dropped ones.
func replay(files []string, verbose io.Writer) (report, error) {
	rep := report{In: newDirStats(), Out: newDirStats()}
	inDec := protocol.NewDecoder(protocol.ServerVariants())
	outDec := protocol.NewDecoder(protocol.ClientVariants())
	if verbose != nil {
		fmt.Fprintf(verbose, "in  order: %s\n", variantOrder(inDec))
		fmt.Fprintf(verbose, "out order: %s\n", variantOrder(outDec))
	}

	for _, path := range files {
		rep.Files++
		err := framelog.ReadFrames(path, func(e framelog.FrameEntry) error {
			dec, st := inDec, &rep.In
			if e.Dir == network.Outbound {
				dec, st = outDec, &rep.Out
			}
			if !protocol.IsKnownCode(e.Code) {
				return fmt.Errorf("%s at %s: unrecognized drop code %q", filepath.Base(path), e.At.Format("15:04:05.000"), e.Code)
			}
			data := e.Bytes()
			st.Frames++
			st.Bytes += uint64(len(data))

			ev, err := dec.Decode(data)
			code := protocol.DecodeErrorCode(err)
			if err != nil && code == "" {
				return err
			}
			if verbose != nil {
				label := string(ev.Kind())
				if err != nil {
					label = "DROP " + code
				}
				fmt.Fprintf(verbose, "%s %-3s %-24s %s\n", e.At.Format("15:04:05.000"), e.Dir, label, data)
			}
			rep.Checked++
			switch {
			case e.Code != "" && code != e.Code:
				return fmt.Errorf("%s at %s: recorded drop %s, decoded %q (%v)", filepath.Base(path), e.At.Format("15:04:05.000"), e.Code, ev.Kind(), err)
			case e.Code == "" && err != nil:
				return fmt.Errorf("%s at %s: recorded %s, now undecodable: %w", filepath.Base(path), e.At.Format("15:04:05.000"), e.Kind, err)
			case e.Code == "" && e.Kind != "" && ev.Kind() != e.Kind:
				return fmt.Errorf("%s at %s: recorded %s, decoded %s", filepath.Base(path), e.At.Format("15:04:05.000"), e.Kind, ev.Kind())
			}
			if err != nil {
				st.Drops[code]++
			} else {
				st.Kinds[ev.Kind()]++
			}
			return nil
		})
		if err != nil {
			return rep, err
		}
	}
	if rep.Checked == 0 {
		return rep, errors.New("no frames recorded")
	}
	return rep, nil
}

func variantOrder(d *protocol.Decoder) string {
	vs := d.Variants()
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = string(v.Kind)
	}
	return strings.Join(names, " > ")
}

func (r report) print(w io.Writer) {
	for _, d := range []struct {
		name string
		st   dirStats
	}{{"in", r.In}, {"out", r.Out}} {
		fmt.Fprintf(w, "%-3s frames=%s bytes=%s\n", d.name, humanize.Comma(int64(d.st.Frames)), humanize.Bytes(d.st.Bytes))
		kinds := make([]string, 0, len(d.st.Kinds))
		for k := range d.st.Kinds {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "    %-24s %s\n", k, humanize.Comma(int64(d.st.Kinds[protocol.Kind(k)])))
		}
		codes := make([]string, 0, len(d.st.Drops))
		for c := range d.st.Drops {
			codes = append(codes, c)
		}
		sort.Strings(codes)
		for _, c := range codes {
			fmt.Fprintf(w, "    drop %-19s %s\n", c, humanize.Comma(int64(d.st.Drops[c])))
		}
	}
	fmt.Fprintf(w, "replay ok: checked=%d frames in %d files\n", r.Checked, r.Files)
}
