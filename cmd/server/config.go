package main

import "time"

type Config struct {
	Host                      string        `env:"HOST,default=localhost"`
	Port                      int           `env:"PORT,default=8080"`
	LogLevel                  string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath            string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath             string        `env:"BLUGE_FILEPATH,required=true"`
	UploadDir                 string        `env:"UPLOAD_DIR,required=true"`
	UploadMaxBytes            int64         `env:"UPLOAD_MAX_BYTES,default=10485760"`
	JWTSecret                 string        `env:"JWT_SECRET,required=true"`
	SessionDuration           time.Duration `env:"SESSION_DURATION,default=24h"`
	SecureCookies             bool          `env:"SECURE_COOKIES,default=false"`
	ConnectionBufferSize      int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	DeliveryTimeout           time.Duration `env:"DELIVERY_TIMEOUT,default=5s"`
	LimitMessages             *int          `env:"LIMIT_MESSAGES"`
	RetentionWindow           time.Duration `env:"RETENTION_WINDOW,default=5h"`
	SweepInterval             time.Duration `env:"SWEEP_INTERVAL,default=10m"`
	TelemetryInterval         time.Duration `env:"TELEMETRY_INTERVAL,default=30s"`
	ModerationCharReplacement string        `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
	// DEBUG_PORT exposes the localhost-only store inspector when non-zero.
	DebugPort int `env:"DEBUG_PORT,default=0"`
}
