//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package security

import (
	"bytes"

	"golang.org/x/sys/unix"
)

// probeCPUID and probeBoardID hash the kernel/hardware identity exposed by
// uname(2), the same syscall the teacher's internal/system_unix.go uses for
// its platformVersion probe (github.com/zephyrtronium/iolang). uname does
// not expose a true CPU serial or motherboard serial on most platforms, so
// this is the closest portable proxy available without shelling out to
// dmidecode/cpuid, which §4.3 explicitly allows ("a zero value is
// acceptable for unavailable probes").

func probeCPUID() uint64 {
	var uname unix.Utsname
	if unix.Uname(&uname) != nil {
		return 0
	}
	machine := bytes.Trim(uname.Machine[:], "\x00")
	release := bytes.Trim(uname.Release[:], "\x00")
	return hashString64(string(machine) + "/" + string(release))
}

func probeBoardID() uint64 {
	var uname unix.Utsname
	if unix.Uname(&uname) != nil {
		return 0
	}
	nodename := bytes.Trim(uname.Nodename[:], "\x00")
	sysname := bytes.Trim(uname.Sysname[:], "\x00")
	version := bytes.Trim(uname.Version[:], "\x00")
	return hashString64(string(sysname) + "/" + string(nodename) + "/" + string(version))
}
