package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath string

	// HTTP server
	Port         string
	BaseUrl      string
	APIAccessKey string

	// Ingestion
	Schedule         string
	PollingEnabled   bool
	WorkerCount      int
	FetchTimeout     time.Duration
	SourceBudget     time.Duration
	RunTimeout       time.Duration
	MaxItems         int
	FailureThreshold int
	SourcesDir       string

	// Optional collaborators
	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
