package version

import (
	"fmt"
	"runtime"
)

// 编译时通过 -ldflags "-X github.com/wentf9/nirvana/cmd/version.Version=..." 覆盖
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// Short 形如 "nirvana dev (none)"
func Short() string {
	return fmt.Sprintf("nirvana %s (%s)", Version, Commit)
}

// PrintFullVersion 打印详细版本信息
func PrintFullVersion() {
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Git Commit: %s\n", Commit)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
