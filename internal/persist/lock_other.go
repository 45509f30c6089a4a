//go:build !unix && !windows

package persist

import "os"

// на остальных платформах блокировка не поддерживается
func lockFile(*os.File) error   { return nil }
func unlockFile(*os.File) error { return nil }
