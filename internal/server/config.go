package server

import "time"

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// AllowedOrigins feeds Access-Control-Allow-Origin. "*" allows any origin.
	AllowedOrigins []string

	// SubmitPerMinute and SubmitBurst bound job submissions per client IP.
	// A zero rate disables the limiter.
	SubmitPerMinute float64
	SubmitBurst     int

	// WriteWait bounds a single websocket write.
	WriteWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		AllowedOrigins:  []string{"*"},
		SubmitPerMinute: 10,
		SubmitBurst:     5,
		WriteWait:       10 * time.Second,
	}
}
