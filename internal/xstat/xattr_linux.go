//go:build linux

package xstat

import "golang.org/x/sys/unix"

// errNoAttr is the errno getxattr reports for a missing attribute.
const errNoAttr = unix.ENODATA
