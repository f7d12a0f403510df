//go:build !linux

package main

func sdNotifyReady()    {}
func sdNotifyStopping() {}
