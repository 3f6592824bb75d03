// Package container wires the gatekeeper's services into a samber/do injector.
package container

import "time"

// Counter store backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options are parsed by humacli from flags and SERVICE_* environment variables.
type Options struct {
	Port             int    `default:"8888"           doc:"Port to listen on"                                  short:"p"`
	RedisAddr        string `default:"localhost:6379" doc:"Redis server address"                               short:"r"`
	DatabaseURL      string `default:""               doc:"Postgres URL for decision audit (empty logs only)"`
	LogFormat        string `default:"console"        doc:"Log format: console or json"`
	StoreBackend     string `default:"redis"          doc:"Counter store backend: redis or memory"`
	MaxPerRecipient  int    `default:"5"              doc:"Admissions allowed per recipient per window"`
	MaxGlobal        int    `default:"50"             doc:"Admissions allowed across all recipients per window"`
	WindowMS         int    `default:"1000"           doc:"Rolling window in milliseconds"`
	LockTimeoutMS    int    `default:"2000"           doc:"Max wait for counter locks in milliseconds (0 waits for the request)"`
	WriteTimeoutMS   int    `default:"1000"           doc:"Bound on the counter write after an admission in milliseconds"`
	Atomic           bool   `default:"false"          doc:"Run the whole check inside the store (required with several instances)"`
	PolicyFile       string `default:""               doc:"Optional YAML file overriding the policy values"`
	PublishDecisions bool   `default:"true"           doc:"Publish every decision to the audit stream"`
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
