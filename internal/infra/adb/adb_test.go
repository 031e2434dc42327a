package adb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// stubADB writes a shell script that plays back canned adb output.
func stubADB(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func stubClient(t *testing.T, script string) *Client {
	c := NewClient("192.168.1.50")
	c.binary = stubADB(t, script)
	return c
}

func TestConnect(t *testing.T) {
	c := stubClient(t, `echo "connected to 192.168.1.50:5555"`)
	if err := c.Connect(context.Background()); err != nil {
		t.Errorf("connect: %v", err)
	}
}

func TestConnectReportsRefusal(t *testing.T) {
	// adb connect exits 0 even when the device refuses; the output is the
	// only failure signal.
	c := stubClient(t, `echo "failed to connect to 192.168.1.50:5555"`)
	if err := c.Connect(context.Background()); err == nil {
		t.Error("expected an error for a refused connection")
	}
}

func TestIsAuthorized(t *testing.T) {
	c := stubClient(t, `echo ADB_OK`)
	if !c.IsAuthorized(context.Background()) {
		t.Error("expected authorized")
	}

	c = stubClient(t, `echo "device unauthorized"; exit 1`)
	if c.IsAuthorized(context.Background()) {
		t.Error("expected unauthorized on command failure")
	}
}

func TestInstalledApps(t *testing.T) {
	c := stubClient(t, `printf 'package:org.xbmc.kodi\npackage:com.example.app\n\n'`)

	apps, err := c.InstalledApps(context.Background())
	if err != nil {
		t.Fatalf("installed apps: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("got %d apps: %v", len(apps), apps)
	}
	// Sorted by package id.
	if apps[0].PackageID != "com.example.app" || apps[1].PackageID != "org.xbmc.kodi" {
		t.Errorf("order %v", apps)
	}
	if apps[0].URL != "market://launch?id=com.example.app" {
		t.Errorf("launch link %q", apps[0].URL)
	}
}
