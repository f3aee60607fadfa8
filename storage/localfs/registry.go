package localfs

import (
	"fmt"

	"xdao.co/aincraft/storage"
	"xdao.co/aincraft/storage/storeregistry"
)

// SettingDir names the packet directory setting.
const SettingDir = "localfs-dir"

func init() {
	storeregistry.MustRegister(storeregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem packet store (directory)",
		Usage:       storeregistry.UsageNode | storeregistry.UsageTest,
		Settings:    []string{SettingDir},
		Open: func(settings map[string]string) (storage.Store, func() error, error) {
			dir := settings[SettingDir]
			if dir == "" {
				return nil, nil, fmt.Errorf("localfs: missing %s", SettingDir)
			}
			s, err := New(dir)
			return s, nil, err
		},
	})
}
