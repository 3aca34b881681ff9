package notify

import "fmt"

// Manager coordinates notification dispatch through a Notifier backend,
// filtering events according to Config.
type Manager struct {
	notifier Notifier
	config   Config
}

// NewManager creates a Manager with the given config and platform notifier.
func NewManager(config Config, notifier Notifier) *Manager {
	return &Manager{
		notifier: notifier,
		config:   config,
	}
}

// Notify sends a notification if the manager is enabled and the event type
// passes the config filter.
func (m *Manager) Notify(n Notification) error {
	if !m.config.Enabled {
		return nil
	}
	if allowed, exists := m.config.EventFilter[n.Event]; exists && !allowed {
		return nil
	}
	return m.notifier.Send(n)
}

// CACreated sends a notification that a new root certificate authority was
// provisioned for the first time.
func (m *Manager) CACreated(storePath string) error {
	return m.Notify(Notification{
		Event:   EventCACreated,
		Title:   "Local CA created",
		Message: fmt.Sprintf("A new root certificate authority was created at %s", storePath),
	})
}

// CertRenewed sends a notification that a leaf certificate was reissued for
// a domain because its on-disk files had aged past the renewal window.
func (m *Manager) CertRenewed(domain string) error {
	return m.Notify(Notification{
		Event:   EventCertRenewed,
		Title:   "Certificate renewed",
		Message: fmt.Sprintf("Reissued the TLS certificate for %s", domain),
	})
}

// TrustInstalled sends a notification that the root CA certificate was
// installed into the system trust store.
func (m *Manager) TrustInstalled() error {
	return m.Notify(Notification{
		Event:   EventTrustInstall,
		Title:   "Certificate trusted",
		Message: "The local root certificate authority was added to the system trust store",
	})
}

// TrustFailed sends a notification that installing the root CA certificate
// into the system trust store failed, along with the reason.
func (m *Manager) TrustFailed(reason string) error {
	return m.Notify(Notification{
		Event:   EventTrustFailed,
		Title:   "Certificate trust failed",
		Message: fmt.Sprintf("Could not install the root certificate: %s", reason),
	})
}
