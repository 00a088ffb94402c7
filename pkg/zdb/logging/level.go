package logging

import (
	"strings"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota + 1
	INFO
	NOTICE
	WARN
	ERROR
	FATAL
)

const (
	colorRed    = 202
	colorBlue   = 6
	colorYellow = 178
	colorGray   = 8
)

//nolint:gochecknoglobals // level names are looked up on every log call.
var levelNames = map[Level]string{
	DEBUG:  "DEBUG",
	INFO:   "INFO",
	NOTICE: "NOTICE",
	WARN:   "WARN",
	ERROR:  "ERROR",
	FATAL:  "FATAL",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}

	return ""
}

//nolint:gomnd // ANSI color codes.
func (l Level) color() uint {
	switch l {
	case ERROR, FATAL:
		return colorRed
	case WARN, NOTICE:
		return colorYellow
	case INFO:
		return colorBlue
	case DEBUG:
		return colorGray
	default:
		return 0
	}
}

// MarshalJSON writes the level as its name.
func (l Level) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// GetLevelFromString converts a configured level name into a Level. Unknown names yield INFO.
func GetLevelFromString(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "NOTICE":
		return NOTICE
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}
