package main

import "time"

type Config struct {
	Host      string `env:"HOST,default=0.0.0.0"`
	Port      int    `env:"PORT,required=true"`
	DebugPort int    `env:"DEBUG_PORT,required=true"`
	LogLevel  string `env:"LOG_LEVEL,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES"`

	ConnectionQueueSize int           `env:"CONNECTION_QUEUE_SIZE,default=64"`
	PongWait            time.Duration `env:"PONG_WAIT,default=60s"`
	PingPeriod          time.Duration `env:"PING_PERIOD,default=25s"`
	WriteWait           time.Duration `env:"WRITE_WAIT,default=10s"`

	SweepInterval  time.Duration `env:"SWEEP_INTERVAL,default=30s"`
	LivenessWindow time.Duration `env:"LIVENESS_WINDOW,default=90s"`
	ReportInterval time.Duration `env:"REPORT_INTERVAL,default=60s"`

	CensoredWords []string `env:"CENSORED_WORDS"`
	CensoredChar  string   `env:"CENSORED_CHAR,default=*"`
}
