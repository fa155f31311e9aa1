package system

import (
	"fmt"
	"os"
	"runtime"
)

// Info describes the running process and host.
type Info struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	GoVersion string `json:"go_version"`
	PID       int    `json:"pid"`
	CPUs      int    `json:"cpus"`
}

func GetInfo() Info {
	return Info{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
		PID:       os.Getpid(),
		CPUs:      runtime.NumCPU(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s/%s, %s", i.OS, i.Arch, i.GoVersion)
}
