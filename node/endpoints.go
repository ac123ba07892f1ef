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

package node

import (
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// checkModuleAvailability checks that all names given in modules are actually
// available API services. The "rpc" metadata module is registered by every
// rpc.Server and is therefore always available.
// checkModuleAvailability 检查请求的模块名称是否对应已注册的 API 服务。
func checkModuleAvailability(modules []string, apis []rpc.API) (bad, available []string) {
	availableSet := make(map[string]struct{})
	for _, api := range apis {
		if _, ok := availableSet[api.Namespace]; !ok {
			availableSet[api.Namespace] = struct{}{}
			available = append(available, api.Namespace)
		}
	}
	for _, name := range modules {
		if _, ok := availableSet[name]; !ok && name != rpc.MetadataApi {
			bad = append(bad, name)
		}
	}
	return bad, available
}

// CheckTimeouts ensures that timeout values are meaningful
// CheckTimeouts 确保超时值是合理的
func CheckTimeouts(timeouts *rpc.HTTPTimeouts) {
	sanitize := func(what string, value *time.Duration, fallback time.Duration) {
		if *value < time.Second {
			log.Warn("Sanitizing invalid HTTP "+what+" timeout", "provided", *value, "updated", fallback)
			*value = fallback
		}
	}
	sanitize("read", &timeouts.ReadTimeout, rpc.DefaultHTTPTimeouts.ReadTimeout)
	sanitize("read header", &timeouts.ReadHeaderTimeout, rpc.DefaultHTTPTimeouts.ReadHeaderTimeout)
	sanitize("write", &timeouts.WriteTimeout, rpc.DefaultHTTPTimeouts.WriteTimeout)
	sanitize("idle", &timeouts.IdleTimeout, rpc.DefaultHTTPTimeouts.IdleTimeout)
}
