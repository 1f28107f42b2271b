package network

import "time"

const (
	connTimeout     = 30 * time.Second
	requestTimeout  = 30 * time.Second
	readTimeout     = 30 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
	maxMsgSize      = 1024 * 1024 // 1MB
)
