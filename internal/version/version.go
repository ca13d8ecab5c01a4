// Package version 提供构建版本信息
package version

import (
	"runtime/debug"
	"strings"
)

var (
	// Version 版本号，构建时通过 -ldflags 注入
	Version = "dev"

	// BuildTime 构建时间，通过 -ldflags 注入
	BuildTime = ""

	// GitCommit Git 提交哈希，通过 -ldflags 注入
	GitCommit = ""
)

func init() {
	if Version != "dev" {
		return
	}
	// go install 构建时从模块信息读取版本
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			Version = strings.TrimPrefix(v, "v")
		}
		if GitCommit == "" {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					GitCommit = setting.Value
				}
			}
		}
	}
}

// GetVersion 获取完整版本信息
func GetVersion() string {
	version := "v" + Version
	if BuildTime != "" {
		version += " (built " + BuildTime + ")"
	}
	if GitCommit != "" {
		version += " commit " + shortCommit(GitCommit)
	}
	return version
}

// GetShortVersion 获取简短版本号
func GetShortVersion() string {
	return "v" + Version
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
