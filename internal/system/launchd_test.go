//go:build darwin

package system

import (
	"strings"
	"testing"
)

func TestGeneratePlist(t *testing.T) {
	daemonPath := "/usr/local/bin/sptth"
	configPath := "/etc/sptth/config.toml"
	plist := GeneratePlist(daemonPath, configPath)

	if !strings.Contains(plist, `<?xml version="1.0"`) {
		t.Error("plist should contain XML declaration")
	}
	if !strings.Contains(plist, `<!DOCTYPE plist`) {
		t.Error("plist should contain DOCTYPE")
	}

	if !strings.Contains(plist, "<string>dev.sptth.daemon</string>") {
		t.Error("plist should contain the service label")
	}

	if !strings.Contains(plist, "<string>"+daemonPath+"</string>") {
		t.Errorf("plist should contain daemon path %s", daemonPath)
	}
	if !strings.Contains(plist, "<string>serve</string>") {
		t.Error("plist should invoke the serve subcommand")
	}
	if !strings.Contains(plist, "<string>"+configPath+"</string>") {
		t.Errorf("plist should contain config path %s", configPath)
	}

	if !strings.Contains(plist, "<key>RunAtLoad</key>") {
		t.Error("plist should contain RunAtLoad key")
	}
	if !strings.Contains(plist, "<true/>") {
		t.Error("plist should have RunAtLoad set to true")
	}

	if !strings.Contains(plist, "<key>KeepAlive</key>") {
		t.Error("plist should contain KeepAlive key")
	}

	if !strings.Contains(plist, "<key>StandardOutPath</key>") {
		t.Error("plist should contain StandardOutPath")
	}
	if !strings.Contains(plist, "<key>StandardErrorPath</key>") {
		t.Error("plist should contain StandardErrorPath")
	}
	if !strings.Contains(plist, "<string>/var/log/sptth.log</string>") {
		t.Error("plist should point logs to /var/log/sptth.log")
	}
}

func TestGeneratePlistDifferentPaths(t *testing.T) {
	paths := []string{
		"/opt/sptth/bin/sptth",
		"/home/user/go/bin/sptth",
		"/usr/bin/sptth",
	}

	for _, p := range paths {
		plist := GeneratePlist(p, "/etc/sptth/config.toml")
		if !strings.Contains(plist, "<string>"+p+"</string>") {
			t.Errorf("plist should contain daemon path %s", p)
		}
	}
}

func TestLaunchdManagerPlistPath(t *testing.T) {
	m := &LaunchdManager{}
	expected := "/Library/LaunchDaemons/dev.sptth.daemon.plist"
	if m.PlistPath() != expected {
		t.Errorf("PlistPath() = %q, want %q", m.PlistPath(), expected)
	}
}

func TestNewServiceManagerReturnLaunchd(t *testing.T) {
	mgr := NewServiceManager()
	if _, ok := mgr.(*LaunchdManager); !ok {
		t.Error("NewServiceManager() on darwin should return *LaunchdManager")
	}
}
