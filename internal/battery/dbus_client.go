package battery

import (
	"github.com/godbus/dbus/v5"
)

// DBusClient defines the D-Bus operations the UPower source needs.
//
//go:generate mockgen -destination=mocks/dbus_client_mock.go -package=mocks github.com/genricoloni/notchd/internal/battery DBusClient
type DBusClient interface {
	// Close closes the D-Bus connection
	Close() error

	// AddMatchSignal adds a signal match rule
	AddMatchSignal(options ...dbus.MatchOption) error

	// Signal registers a channel to receive D-Bus signals
	Signal(ch chan<- *dbus.Signal)

	// GetProperty retrieves a property from a D-Bus object
	// dest: The bus name (e.g., "org.freedesktop.UPower")
	// path: The object path (e.g., "/org/freedesktop/UPower/devices/DisplayDevice")
	// prop: The qualified property name (e.g., "org.freedesktop.UPower.Device.Percentage")
	GetProperty(dest, path, prop string) (dbus.Variant, error)
}

// StdDBusClient is the real implementation using godbus
type StdDBusClient struct {
	conn *dbus.Conn
}

// NewStdDBusClient creates a real D-Bus client connected to the system bus
func NewStdDBusClient() (DBusClient, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	return &StdDBusClient{conn: conn}, nil
}

// Close closes the D-Bus connection
func (c *StdDBusClient) Close() error {
	return c.conn.Close()
}

// AddMatchSignal adds a signal match rule
func (c *StdDBusClient) AddMatchSignal(options ...dbus.MatchOption) error {
	return c.conn.AddMatchSignal(options...)
}

// Signal registers a channel to receive D-Bus signals
func (c *StdDBusClient) Signal(ch chan<- *dbus.Signal) {
	c.conn.Signal(ch)
}

// GetProperty retrieves a property from a D-Bus object
func (c *StdDBusClient) GetProperty(dest, path, prop string) (dbus.Variant, error) {
	return c.conn.Object(dest, dbus.ObjectPath(path)).GetProperty(prop)
}
