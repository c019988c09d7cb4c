package app

const (
	Name             = "cncbridge"
	SourceURL        = "https://git.skobk.in/skobkin/cncbridge"
	ConfigFilename   = "config.json"
	DBFilename       = "journal.db"
	LogFilename      = "cncbridge.log"
	JournalQueueSize = 512
)
