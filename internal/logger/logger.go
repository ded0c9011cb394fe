/**
 * @description
 * Leveled logger for the Curio backend.
 * Info and warn lines go to stdout, errors to stderr, so hosted log collectors
 * classify them correctly.
 *
 * @dependencies
 * - standard "log"
 * - standard "fmt"
 */

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu sync.RWMutex
	// InfoLogger writes to stdout
	InfoLogger = log.New(os.Stdout, "", 0)
	// ErrorLogger writes to stderr (for actual errors)
	ErrorLogger = log.New(os.Stderr, "", 0)
)

// SetOutput redirects both streams, mainly so tests can capture log lines.
func SetOutput(info, errs io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	InfoLogger = log.New(info, "", 0)
	ErrorLogger = log.New(errs, "", 0)
}

// Info logs an info message to stdout
func Info(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	InfoLogger.Println(fmt.Sprintf(format, v...))
}

// Warn logs a recoverable problem to stdout with a WARN marker
func Warn(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	InfoLogger.Println("WARN " + fmt.Sprintf(format, v...))
}

// Error logs an error message to stderr
func Error(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	ErrorLogger.Println(fmt.Sprintf(format, v...))
}

// Fatal logs an error and exits
func Fatal(format string, v ...interface{}) {
	mu.RLock()
	l := ErrorLogger
	mu.RUnlock()
	l.Fatalln(fmt.Sprintf(format, v...))
}

// Component prefixes every line with a fixed component name, e.g. "AppraisalWorker: ".
type Component struct {
	prefix string
}

// Named returns a Component logger for the given name
func Named(name string) Component {
	return Component{prefix: name + ": "}
}

func (c Component) Info(format string, v ...interface{}) {
	Info(c.prefix+format, v...)
}

func (c Component) Warn(format string, v ...interface{}) {
	Warn(c.prefix+format, v...)
}

func (c Component) Error(format string, v ...interface{}) {
	Error(c.prefix+format, v...)
}
