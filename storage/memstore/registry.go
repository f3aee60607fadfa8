package memstore

import (
	"xdao.co/aincraft/storage"
	"xdao.co/aincraft/storage/storeregistry"
)

func init() {
	storeregistry.MustRegister(storeregistry.Backend{
		Name:        "memory",
		Description: "In-memory packet store (lost on exit)",
		Usage:       storeregistry.UsageNode | storeregistry.UsageTest,
		Open: func(map[string]string) (storage.Store, func() error, error) {
			return New(), nil, nil
		},
	})
}
