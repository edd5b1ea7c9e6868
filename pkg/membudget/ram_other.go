//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly

package membudget

func systemRAM() (int64, bool) {
	return 0, false
}
