package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version information - injected at build time via ldflags
var (
	Version   = "dev"
	Build     = "unknown"
	BuildTime = ""
)

// printVersion prints the version information
func printVersion() {
	fmt.Printf("cabplanner version %s", Version)

	if Build != "unknown" && Build != "" {
		fmt.Printf(" (build: %s)", Build)
	}

	if BuildTime != "" {
		fmt.Printf(" [%s]", BuildTime)
	}

	fmt.Println()

	fmt.Printf("Channel: %s\n", releaseChannel(Version))
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// Try to get build info for development builds
	if Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" && len(setting.Value) > 7 {
					fmt.Printf("Commit: %s\n", setting.Value[:7])
					break
				}
			}
		}
	}
}

// releaseChannel derives the channel from the version's prerelease label:
// "1.2.0-beta.1" is on the beta channel, a bare "1.2.0" is stable.
func releaseChannel(version string) string {
	if version == "" || version == "dev" || version == "development" {
		return "dev"
	}
	_, label, ok := strings.Cut(version, "-")
	if !ok || label == "" {
		return "stable"
	}
	channel, _, _ := strings.Cut(label, ".")
	return channel
}
