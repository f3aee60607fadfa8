// Package bundle moves packets between stores as a deterministic TAR archive.
//
// Layout:
//
//	packets/<cid>   packet wire bytes; cid is the CIDv1 raw sha2-256 of them
//	index.json      optional, non-authoritative list of names and cids
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/aincraft/cidutil"
	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
	"xdao.co/aincraft/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

const packetDir = "packets/"

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
	// SkipMissing drops names the store does not hold instead of failing.
	SkipMissing bool
}

// Export writes the packets stored under names to w. Entries are ordered by
// name and TAR headers are normalized, so equal inputs give equal bytes.
func Export(w io.Writer, store storage.Store, names []name.Name, opts ExportOptions) error {
	if store == nil {
		return fmt.Errorf("bundle: nil store")
	}

	uniq := make(map[string]name.Name, len(names))
	for _, n := range names {
		if len(n) == 0 {
			return storage.ErrInvalidName
		}
		uniq[n.String()] = n
	}
	sorted := make([]name.Name, 0, len(uniq))
	for _, n := range uniq {
		sorted = append(sorted, n)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })

	tw := tar.NewWriter(w)
	entries := make([]indexEntry, 0, len(sorted))
	for _, n := range sorted {
		p, err := store.Get(n)
		if err != nil {
			if opts.SkipMissing && storage.IsNotFound(err) {
				continue
			}
			_ = tw.Close()
			return err
		}
		if !p.Name.Equal(n) {
			_ = tw.Close()
			return storage.ErrNameMismatch
		}
		b := p.Wire()
		id, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, packetDir+id.String(), b); err != nil {
			_ = tw.Close()
			return err
		}
		entries = append(entries, indexEntry{Name: n.String(), CID: id.String(), Size: len(b)})
	}

	if opts.IncludeIndex {
		b, err := marshalIndex(indexJSON{
			Version:   FormatVersion,
			CIDCodec:  "raw",
			Multihash: "sha2-256",
			Packets:   entries,
		})
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", b); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool

	// Verify, when set, is called for every packet before it is stored. A
	// packet it rejects is skipped and counted in Result.Rejected.
	Verify func(p *packet.Packet) error
}

type Result struct {
	Imported int
	Rejected int
}

// Import reads a bundle from r and stores every packet in store.
func Import(r io.Reader, store storage.Store) (Result, error) {
	return ImportWithOptions(r, store, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and stores every packet in store.
//
// It validates that each entry's bytes match its file name cid and decode as a
// packet.
func ImportWithOptions(r io.Reader, store storage.Store, opts ImportOptions) (Result, error) {
	var res Result
	if store == nil {
		return res, fmt.Errorf("bundle: nil store")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		path := cleanTarPath(h.Name)
		if path == "" {
			return res, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return res, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, path)
		}

		if path == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(path, packetDir) {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return res, fmt.Errorf("bundle: unknown entry: %s", path)
		}

		id, derr := cid.Decode(strings.TrimPrefix(path, packetDir))
		if derr != nil || !id.Defined() {
			return res, fmt.Errorf("bundle: invalid cid in %s", path)
		}
		payload, rerr := io.ReadAll(tr)
		if rerr != nil {
			return res, rerr
		}
		if !cidutil.Matches(id, payload) {
			return res, fmt.Errorf("bundle: %s does not match its cid", path)
		}
		key := id.String()
		if _, ok := seen[key]; ok {
			return res, fmt.Errorf("bundle: duplicate packet entry: %s", key)
		}
		seen[key] = struct{}{}

		p, perr := packet.Decode(payload)
		if perr != nil {
			return res, fmt.Errorf("bundle: %s: %w", path, perr)
		}
		if opts.Verify != nil {
			if err := opts.Verify(p); err != nil {
				res.Rejected++
				continue
			}
		}
		if err := store.Put(p); err != nil {
			return res, err
		}
		res.Imported++
	}
}

type indexJSON struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Packets   []indexEntry `json:"packets"`
}

type indexEntry struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

func marshalIndex(idx indexJSON) ([]byte, error) {
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, path string, content []byte) error {
	hdr := &tar.Header{
		Name:     path,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimPrefix(path, "./")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return ""
	}

	parts := strings.Split(path, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
