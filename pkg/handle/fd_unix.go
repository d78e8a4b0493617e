//go:build unix

package handle

import "golang.org/x/sys/unix"

func closeFD(fd int) error { return unix.Close(fd) }

func dupFD(fd int) (int, error) { return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0) }
