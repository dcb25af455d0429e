// Package meta holds build information stamped in by the linker, e.g.
//
//	go build -ldflags "-X github.com/luma/gredis/internal/meta.Version=v0.3.0"
package meta

import (
	"runtime"
)

// Protocol is the RESP dialect every gredis connection speaks.
const Protocol = "RESP2"

// Set with -X at link time
var (
	Version   = "dev"
	Commit    string
	BuildTime string
)

type Info struct {
	Version   string
	Commit    string
	BuildTime string
	Protocol  string
	GoVersion string
	Platform  string
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		Protocol:  Protocol,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// UserAgent identifies this build to HTTP clients, e.g. "gredis/v0.3.0 (RESP2; linux/amd64)".
func UserAgent() string {
	info := GetInfo()
	return "gredis/" + info.Version + " (" + info.Protocol + "; " + info.Platform + ")"
}
