package dbtimetable

import (
	"log"
	"os"
)

// Sends log output to stdout, with microsecond timestamps.
func InitLogging() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}
