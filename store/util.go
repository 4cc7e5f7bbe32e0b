package store

import (
	"bytes"
	"io"
	"time"
)

func nowUnix() int64 {
	return time.Now().Unix()
}

func bytesReader(b []byte) io.ReadSeeker {
	return bytes.NewReader(b)
}
