// ABOUTME: Tests for mDNS mixer discovery
// ABOUTME: Validates Manager creation, entry parsing, and lifecycle
package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	config := Config{
		ServiceName: "test-mixer",
		Port:        8930,
		Path:        "/voice",
	}

	manager := NewManager(config)

	if manager == nil {
		t.Fatal("NewManager returned nil")
	}

	if manager.config.ServiceName != "test-mixer" {
		t.Errorf("Expected ServiceName 'test-mixer', got '%s'", manager.config.ServiceName)
	}

	if manager.config.Port != 8930 {
		t.Errorf("Expected Port 8930, got %d", manager.config.Port)
	}

	if manager.servers == nil {
		t.Error("servers channel should not be nil")
	}

	if manager.ctx == nil {
		t.Error("ctx should not be nil")
	}
}

func TestStopCancelsContext(t *testing.T) {
	manager := NewManager(Config{ServiceName: "test"})
	manager.Stop()

	select {
	case <-manager.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after Stop")
	}
}

func TestEntryToServer(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "Living Room._resonate-mixer._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       8930,
		InfoFields: []string{"path=/voice"},
	}

	server := entryToServer(entry)
	if server == nil {
		t.Fatal("expected server")
	}
	if server.Name != "Living Room" {
		t.Errorf("Expected name 'Living Room', got '%s'", server.Name)
	}
	if server.Addr() != "192.168.1.20:8930" {
		t.Errorf("Expected addr 192.168.1.20:8930, got %s", server.Addr())
	}
	if server.Path != "/voice" {
		t.Errorf("Expected path /voice, got %s", server.Path)
	}
}

func TestEntryToServerSkipsUnusable(t *testing.T) {
	if entryToServer(nil) != nil {
		t.Error("nil entry should be skipped")
	}
	if entryToServer(&mdns.ServiceEntry{Name: "x._resonate-mixer._tcp.local."}) != nil {
		t.Error("entry without IPv4 address should be skipped")
	}
	other := &mdns.ServiceEntry{Name: "printer._ipp._tcp.local.", AddrV4: net.ParseIP("10.0.0.1")}
	if entryToServer(other) != nil {
		t.Error("other service types should be skipped")
	}
}
