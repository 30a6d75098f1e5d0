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

package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/packetd/httpcore/common"
	"github.com/packetd/httpcore/confengine"
	"github.com/packetd/httpcore/controller"
	"github.com/packetd/httpcore/handler"
	"github.com/packetd/httpcore/internal/sigs"
	"github.com/packetd/httpcore/logger"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the httpcore runtime as a standalone server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		ctr, err := controller.New(cfg, common.GetBuildInfo(), echoHandler)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create controller: %v\n", err)
			os.Exit(1)
		}
		if err := ctr.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start controller: %v\n", err)
			os.Exit(1)
		}

		var reloadTotal int
		for {
			select {
			case <-sigs.Terminate():
				ctr.Stop()
				return

			case <-sigs.Reload():
				reloadTotal++

				// 需要重新加载配置文件 reload 失败则保持原配置运行
				cfg, err := confengine.LoadConfigPath(configPath)
				if err != nil {
					fmt.Fprintf(os.Stderr, "failed to load config (count=%d): %v\n", reloadTotal, err)
					continue
				}

				start := time.Now()
				if err := ctr.Reload(cfg); err != nil {
					logger.Errorf("failed to reload config: %v", err)
				}
				logger.Infof("reload (count=%d) take %s", reloadTotal, time.Since(start))
			}
		}
	},
	Example: "# httpcore agent --config httpcore.yaml",
}

// echoHandler 是 agent 子命令随包提供的参考处理函数 仅回显请求方法/路径/鉴权用户
// 真正的路由与业务逻辑由嵌入方通过 controller.New 的 fn 参数替换
func echoHandler(req *handler.Request) *handler.Response {
	user := "anonymous"
	if req.User != nil {
		user = req.User.Name
	}
	body := fmt.Sprintf("%s %s (user=%s)\n", req.Method, req.Path, user)
	return &handler.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:   []byte(body),
	}
}

var configPath string

func init() {
	agentCmd.Flags().StringVar(&configPath, "config", "httpcore.yaml", "Configuration file path")
	rootCmd.AddCommand(agentCmd)
}
