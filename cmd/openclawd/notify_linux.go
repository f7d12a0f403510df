//go:build linux

package main

import "github.com/coreos/go-systemd/v22/daemon"

func sdNotifyReady() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

func sdNotifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
