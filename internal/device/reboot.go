package device

import "errors"

var (
	// ErrReboot matches every *Reboot with errors.Is.
	ErrReboot = errors.New("device: reboot requested")

	// ErrStopped is returned by OnCycle after Shutdown.
	ErrStopped = errors.New("device: stopped")
)

// Reboot is returned by Boot and OnCycle when the process must restart.
// Erase means stored credentials were wiped first and the next boot
// enters provisioning.
type Reboot struct {
	Reason string
	Erase  bool
}

func (r *Reboot) Error() string {
	if r.Erase {
		return "device: reboot with erase: " + r.Reason
	}
	return "device: reboot: " + r.Reason
}

// Is reports whether target is ErrReboot.
func (r *Reboot) Is(target error) bool {
	return target == ErrReboot
}
