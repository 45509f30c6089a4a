package logger

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var (
	verbose atomic.Bool
	file    *os.File
)

// Init направляет стандартный log в stderr и (если путь задан) дописывает
// в файл. Вызывается один раз при старте.
func Init(logFilePath string, debug bool) error {
	verbose.Store(debug)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if logFilePath == "" {
		log.SetOutput(os.Stderr)
		return nil
	}
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	file = f
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	log.Println("Logger initialized.")
	return nil
}

// Debugf пишет только при verbose.
func Debugf(format string, args ...any) {
	if verbose.Load() {
		log.Printf("[debug] "+format, args...)
	}
}

func Verbose() bool { return verbose.Load() }

func Close() error {
	if file == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := file.Close()
	file = nil
	return err
}
