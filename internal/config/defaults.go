package config

const (
	defaultDataDir   = "~/.local/share/nola"
	defaultUploadDir = "~/.local/share/nola/uploads"
	defaultLogDir    = "~/.local/share/nola/logs"

	defaultTranscriptionBinary  = "whisper-ctl"
	defaultModelSize            = "small"
	defaultDevice               = "cpu"
	defaultComputeType          = "default"
	defaultTranscriptionTimeout = 3600

	defaultWorkerCount        = 1
	defaultQueuePollInterval  = 1
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultReaperInterval     = 30
	defaultMaxAttempts        = 3

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			UploadDir: defaultUploadDir,
			LogDir:    defaultLogDir,
		},
		Transcription: Transcription{
			Binary:      defaultTranscriptionBinary,
			ModelSize:   defaultModelSize,
			Device:      defaultDevice,
			ComputeType: defaultComputeType,
			TimeoutSec:  defaultTranscriptionTimeout,
		},
		Workflow: Workflow{
			WorkerCount:        defaultWorkerCount,
			QueuePollInterval:  defaultQueuePollInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			ReaperInterval:     defaultReaperInterval,
			DefaultMaxAttempts: defaultMaxAttempts,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
