package version

import (
	"runtime"
	"runtime/debug"
	"strconv"
)

// Set at build time via -ldflags "-X pest-diagnosis-service/version.BuildVersion=...".
var (
	BuildVersion = "dev"
	GitSHA       = ""
	BuildTime    = ""
)

const ServiceName = "pest-diagnosis-service"

type Info struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	GitSHA      string `json:"git_sha,omitempty"`
	BuildTime   string `json:"build_time,omitempty"`
	VCSModified *bool  `json:"vcs_modified,omitempty"`
	GoVersion   string `json:"go_version"`
	GOOS        string `json:"go_os"`
	GOARCH      string `json:"go_arch"`
	LLMSource   string `json:"llm_source,omitempty"`
}

// Get fills unset ldflags values from the embedded VCS build settings.
func Get(llmSource string) Info {
	info := Info{
		Service:   ServiceName,
		Version:   BuildVersion,
		GitSHA:    GitSHA,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
		LLMSource: llmSource,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		applyBuildSettings(&info, bi.Settings)
	}
	return info
}

func applyBuildSettings(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitSHA == "" {
				info.GitSHA = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			if info.VCSModified == nil {
				if b, err := strconv.ParseBool(s.Value); err == nil {
					info.VCSModified = &b
				}
			}
		}
	}
}
