package logger

import (
	"io"
	"log"
	"os"
)

var (
	InfoLogger     *log.Logger
	WarnLogger     *log.Logger
	ErrorLogger    *log.Logger
	CriticalLogger *log.Logger
)

func init() {
	InfoLogger = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	WarnLogger = log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	CriticalLogger = log.New(os.Stderr, "CRITICAL: ", log.Ldate|log.Ltime|log.Lshortfile)
}

// SetOutput redirects every level, mainly for tests.
func SetOutput(w io.Writer) {
	InfoLogger.SetOutput(w)
	WarnLogger.SetOutput(w)
	ErrorLogger.SetOutput(w)
	CriticalLogger.SetOutput(w)
}

func Info(msg string, v ...interface{}) {
	InfoLogger.Output(2, sprintf(msg, v...))
}

func Warn(msg string, v ...interface{}) {
	WarnLogger.Output(2, sprintf(msg, v...))
}

func Error(msg string, err error, v ...interface{}) {
	if err != nil {
		ErrorLogger.Output(2, sprintf(msg+": %v", append(v, err)...))
	} else {
		ErrorLogger.Output(2, sprintf(msg, v...))
	}
}

// Critical marks conditions that need a human, such as stock decremented
// without a matching order.
func Critical(msg string, err error, v ...interface{}) {
	if err != nil {
		CriticalLogger.Output(2, sprintf(msg+": %v", append(v, err)...))
	} else {
		CriticalLogger.Output(2, sprintf(msg, v...))
	}
}
