// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd 是一个参考命令行入口: 加载配置 装配 controller 并驱动其生命周期
// 真正的路由/鉴权策略由嵌入方通过 handler.Func 提供 这里只给出一个最小示例
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "v0.0.1"
	gitHash   = "unknown"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "httpcore",
	Short:   "httpcore is an embeddable HTTP/1.x+HTTP/2 server runtime",
	Version: fmt.Sprintf("%s, git: %s, build: %s", version, gitHash, buildTime),
}

// Execute 是 main 的唯一入口
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
