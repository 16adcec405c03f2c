package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags holds flags for the run command.
type RunFlags struct {
	Open    bool // open the dashboard once ready
	Prompt  bool // open the dashboard each time Enter is pressed
	Timeout time.Duration
}

// ProxyFlags holds flags for the proxy command.
type ProxyFlags struct {
	Listen string
}

// CheckFlags holds flags for the check command.
type CheckFlags struct {
	Timeout time.Duration
}

// RemoteFlags holds the control API connection for status and open.
type RemoteFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Wait       bool
	Interval   time.Duration
}
