package localfs

import (
	"errors"
	"os"
	"path/filepath"

	"xdao.co/aincraft/cidutil"
	"xdao.co/aincraft/name"
	"xdao.co/aincraft/packet"
	"xdao.co/aincraft/storage"
)

// Store is a local filesystem-backed packet store.
//
// Each packet is one file holding its wire encoding, addressed by the CID of
// its name. Overwrites go through a temporary file and a rename so readers
// never observe a partial packet.
type Store struct {
	root string
}

var _ storage.Store = (*Store)(nil)

// New constructs a filesystem store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(p *packet.Packet) error {
	if p == nil || len(p.Name) == 0 {
		return storage.ErrInvalidName
	}
	path, err := s.pathFor(p.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(p.Wire()); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *Store) Get(n name.Name) (*packet.Packet, error) {
	if len(n) == 0 {
		return nil, storage.ErrInvalidName
	}
	path, err := s.pathFor(n)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	p, err := packet.Decode(b)
	if err != nil {
		return nil, err
	}
	if !p.Name.Equal(n) {
		return nil, storage.ErrNameMismatch
	}
	return p, nil
}

func (s *Store) Has(n name.Name) bool {
	if len(n) == 0 {
		return false
	}
	path, err := s.pathFor(n)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (s *Store) pathFor(n name.Name) (string, error) {
	id, err := cidutil.NameCID(n)
	if err != nil {
		return "", err
	}
	str := id.String()
	if len(str) < 2 {
		return filepath.Join(s.root, str), nil
	}
	return filepath.Join(s.root, str[:2], str), nil
}
