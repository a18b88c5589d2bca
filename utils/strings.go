package utils

import (
	"unsafe"
)

// BytesToString avoids a copy; b must not be modified afterwards.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
