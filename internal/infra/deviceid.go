package infra

import (
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
)

// DeviceID returns a stable identifier for this device: the platform host
// id when available, otherwise a freshly generated UUID (stable only for
// the lifetime of the stored config record, which persists it).
func DeviceID() string {
	if id, err := host.HostID(); err == nil && id != "" {
		return id
	}
	return uuid.NewString()
}
