package cover

import "context"

// UniqueIdStore renames registry entries.
type UniqueIdStore interface {
	MigrateUniqueId(ctx context.Context, platform string, oldId string, newId string) error
}

// UniqueId is the current unique id of a device: controller id and serial.
func UniqueId(d Device) string {
	return d.RootDeviceId() + "_" + d.Serial()
}

// LegacyUniqueId is the serial-only id used before several controllers could
// share one installation.
func LegacyUniqueId(d Device) string {
	return d.Serial()
}

// MigrateToNewUniqueId returns a MigrateFunc moving legacy ids in store.
func MigrateToNewUniqueId(store UniqueIdStore) MigrateFunc {
	return func(ctx context.Context, platform string, d Device) error {
		return store.MigrateUniqueId(ctx, platform, LegacyUniqueId(d), UniqueId(d))
	}
}
