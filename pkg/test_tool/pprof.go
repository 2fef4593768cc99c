package testtool

import (
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"chat_presence_service/pkg/config"
	"chat_presence_service/pkg/logger"

	"go.uber.org/zap"
)

// StartPprof serve the pprof endpoints on addr, disabled in production
func StartPprof(addr string) {
	if config.IsProduction() || addr == "" {
		logger.Log.Info("pprof is disabled")
		return
	}

	go func() {
		logger.Log.Info("Starting pprof server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Log.Warn("pprof server failed", zap.Error(err))
		}
	}()
}

// pprof 端點：
// 	•	/debug/pprof/goroutine → 顯示所有 Goroutines, 檢查連線是否洩漏
// 	•	/debug/pprof/heap → 顯示記憶體分配
// 	•	/debug/pprof/profile → 執行 30 秒 CPU 分析
// 	•	/debug/pprof/mutex → registry shard 鎖的競爭情況
//
// go tool pprof http://127.0.0.1:6060/debug/pprof/profile?seconds=30
// 只綁在 127.0.0.1，不要對外開放
