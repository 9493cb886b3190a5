package wifi

import (
	"context"
	"sync"
)

// FakeLink is a scripted Link for tests.
type FakeLink struct {
	mu sync.Mutex

	// LinkUp is returned by Up.
	LinkUp bool
	// UpOnAssociate makes Associate bring the link up.
	UpOnAssociate bool
	// AssociateErr, if set, is returned by Associate.
	AssociateErr error
	// APErr, if set, is returned by StartAccessPoint.
	APErr error

	IP       string
	HWAddr   string
	Hostname string
	APSSID   string

	Associations   int
	Disassociation int
	LastSSID       string
}

// NewFakeLink creates a link that comes up on the first association.
func NewFakeLink() *FakeLink {
	return &FakeLink{UpOnAssociate: true, IP: "192.168.1.50", HWAddr: "AA:BB:CC:DD:EE:FF"}
}

func (f *FakeLink) Associate(ctx context.Context, ssid, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Associations++
	f.LastSSID = ssid
	if f.AssociateErr != nil {
		return f.AssociateErr
	}
	if f.UpOnAssociate {
		f.LinkUp = true
	}
	return nil
}

func (f *FakeLink) Up() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.LinkUp
}

// SetUp changes the link state.
func (f *FakeLink) SetUp(up bool) {
	f.mu.Lock()
	f.LinkUp = up
	f.mu.Unlock()
}

func (f *FakeLink) Disassociate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Disassociation++
	f.LinkUp = false
	return nil
}

func (f *FakeLink) LocalIP() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.LinkUp {
		return ""
	}
	return f.IP
}

func (f *FakeLink) MAC() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.HWAddr
}

func (f *FakeLink) SetHostname(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Hostname = name
	return nil
}

func (f *FakeLink) StartAccessPoint(ssid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.APErr != nil {
		return f.APErr
	}
	f.APSSID = ssid
	return nil
}
