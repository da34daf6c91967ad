package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

const serviceName = "tijara-api"

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits a structured JSON log line. Every line carries a
// service field so lines from different processes stay distinguishable in
// an aggregated stream; callers may override it.
func LogRequest(entry map[string]any) {
	line := make(map[string]any, len(entry)+1)
	line["service"] = serviceName
	for k, v := range entry {
		line[k] = v
	}
	data, err := json.Marshal(line)
	if err != nil {
		Logger().Println(`{"service":"` + serviceName + `","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
