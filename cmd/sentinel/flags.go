package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
}

// ClientFlags holds flags for commands that talk to a running daemon.
type ClientFlags struct {
	APIUrl     string
	APITimeout time.Duration
}
