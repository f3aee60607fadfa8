package bundle_test

import (
	"archive/tar"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"xdao.co/aincraft/cidutil"
	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
	"xdao.co/aincraft/storage"
	"xdao.co/aincraft/storage/bundle"
	"xdao.co/aincraft/storage/localfs"
	"xdao.co/aincraft/storage/memstore"
	"xdao.co/aincraft/storage/testkit"
)

func fill(t *testing.T, s storage.Store, uris ...string) []name.Name {
	t.Helper()
	var names []name.Name
	for _, u := range uris {
		p := testkit.Packet(u, "content of "+u)
		if err := s.Put(p); err != nil {
			t.Fatal(err)
		}
		names = append(names, p.Name)
	}
	return names
}

func TestBundle_ExportIsDeterministic(t *testing.T) {
	src := memstore.New()
	names := fill(t, src, "/node-a/sync/seq=1", "/node-a/sync/seq=2", "/node-b/sync/seq=1")

	var outA bytes.Buffer
	if err := bundle.Export(&outA, src, names, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	reversed := []name.Name{names[2], names[1], names[0], names[1]}
	var outB bytes.Buffer
	if err := bundle.Export(&outB, src, reversed, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	src := memstore.New()
	names := fill(t, src, "/node-a/sync/seq=1", "/node-a/sync/seq=2")

	var buf bytes.Buffer
	if err := bundle.Export(&buf, src, names, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	dst, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	res, err := bundle.Import(bytes.NewReader(buf.Bytes()), dst)
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 2 || res.Rejected != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	for _, n := range names {
		want, _ := src.Get(n)
		got, err := dst.Get(n)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got.Wire(), want.Wire()) {
			t.Fatalf("packet mismatch for %s", n)
		}
	}
}

func TestBundle_ExportMissing(t *testing.T) {
	src := memstore.New()
	names := fill(t, src, "/node-a/sync/seq=1")
	names = append(names, name.MustParse("/node-a/sync/seq=9"))

	var buf bytes.Buffer
	if err := bundle.Export(&buf, src, names, bundle.ExportOptions{}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	buf.Reset()
	if err := bundle.Export(&buf, src, names, bundle.ExportOptions{SkipMissing: true}); err != nil {
		t.Fatal(err)
	}
	res, err := bundle.Import(&buf, memstore.New())
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 {
		t.Fatalf("expected 1 packet, got %d", res.Imported)
	}
}

func TestBundle_ImportVerify(t *testing.T) {
	src := memstore.New()
	names := fill(t, src, "/node-a/sync/seq=1", "/node-b/sync/seq=1")

	var buf bytes.Buffer
	if err := bundle.Export(&buf, src, names, bundle.ExportOptions{}); err != nil {
		t.Fatal(err)
	}
	dst := memstore.New()
	res, err := bundle.ImportWithOptions(&buf, dst, bundle.ImportOptions{
		Verify: func(p *packet.Packet) error {
			if strings.HasPrefix(p.Name.String(), "/node-b") {
				return errors.New("untrusted")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 || res.Rejected != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if dst.Has(names[1]) {
		t.Fatalf("rejected packet was stored")
	}
}

func TestBundle_ImportRejectsCIDMismatch(t *testing.T) {
	good := testkit.Packet("/node-a/sync/seq=1", "good").Wire()
	otherCID, err := cidutil.CIDv1RawSHA256CID([]byte("other"))
	if err != nil {
		t.Fatal(err)
	}

	// Name says "otherCID" but the bytes hash differently.
	bundleBytes := makeDeterministicTar(t, "packets/"+otherCID.String(), good)
	if _, err := bundle.Import(bytes.NewReader(bundleBytes), memstore.New()); err == nil {
		t.Fatalf("expected cid mismatch error")
	}
}

func TestBundle_ImportRejectsUnknownEntries(t *testing.T) {
	bundleBytes := makeDeterministicTar(t, "blocks/whatever", []byte("x"))
	if _, err := bundle.Import(bytes.NewReader(bundleBytes), memstore.New()); err == nil {
		t.Fatalf("expected unknown entry error")
	}
	res, err := bundle.ImportWithOptions(bytes.NewReader(bundleBytes), memstore.New(), bundle.ImportOptions{IgnoreUnknown: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 0 {
		t.Fatalf("expected nothing imported, got %d", res.Imported)
	}

	escape := makeDeterministicTar(t, "../packets/x", []byte("x"))
	if _, err := bundle.Import(bytes.NewReader(escape), memstore.New()); err == nil {
		t.Fatalf("expected invalid path error")
	}
}

func makeDeterministicTar(t *testing.T, path string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	h := &tar.Header{
		Name:     path,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
