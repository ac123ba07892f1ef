// Copyright 2017 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package version

import (
	"runtime/debug"
	"sync"
	"time"
)

// Linker-provided overrides, e.g. -ldflags "-X .../version.gitCommit=abc".
var gitCommit, gitDate string

// VCSInfo is the revision the binary was built from.
// VCSInfo 是构建二进制文件所用的修订版本。
type VCSInfo struct {
	Commit string // full commit hash
	Date   string // commit day, YYYYMMDD
	Dirty  bool   // working tree had local modifications
}

// Short returns the first eight characters of the commit hash, with a
// "-dirty" marker for modified trees.
func (v VCSInfo) Short() string {
	s := v.Commit
	if len(s) > 8 {
		s = s[:8]
	}
	if v.Dirty {
		s += "-dirty"
	}
	return s
}

var readVCS = sync.OnceValues(func() (VCSInfo, bool) {
	if gitCommit != "" {
		return VCSInfo{Commit: gitCommit, Date: gitDate}, true
	}
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Path != ourPath {
		return VCSInfo{}, false
	}
	return fromBuildSettings(info.Settings)
})

// VCS returns the revision embedded into the running executable, either by
// the linker or by the go tool's build stamping.
func VCS() (VCSInfo, bool) {
	return readVCS()
}

func fromBuildSettings(settings []debug.BuildSetting) (VCSInfo, bool) {
	var vcs VCSInfo
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			vcs.Commit = s.Value
		case "vcs.modified":
			vcs.Dirty = s.Value == "true"
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				vcs.Date = t.UTC().Format("20060102")
			}
		}
	}
	return vcs, vcs.Commit != "" && vcs.Date != ""
}
