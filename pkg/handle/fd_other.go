//go:build !unix

package handle

import "errors"

var errNoFD = errors.New("handle: file descriptors are not supported on this platform")

func closeFD(int) error        { return errNoFD }
func dupFD(int) (int, error)   { return -1, errNoFD }
