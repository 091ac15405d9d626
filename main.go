package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"p2pio/config"
	"p2pio/contract"
	"p2pio/journal"
	"p2pio/ledger"
	"p2pio/server"
)

// p2pio 入口：加载配置，恢复账本副本，启动 HTTP + WebSocket 服务
func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to a YAML config file (P2PIO_* env vars override it)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}
	// 使用 zap 日志写入滚动文件
	if err := server.InitLogger(cfg.Log); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	opts := []ledger.Option{ledger.WithLogger(server.Logger().Named("ledger"))}
	var jr *journal.SQLiteJournal
	if cfg.Journal.Path != "" {
		jr, err = journal.OpenSQLite(cfg.Journal.Path, server.Logger().Named("journal"))
		if err != nil {
			server.Log.Fatalf("open journal: %v", err)
		}
		defer jr.Close()
		opts = append(opts, ledger.WithJournal(jr))
	}
	replica := ledger.NewReplica(contract.Programs(), opts...)
	if jr != nil {
		entries, err := jr.Load(context.Background())
		if err != nil {
			server.Log.Fatalf("load journal: %v", err)
		}
		if err := replica.Restore(entries); err != nil {
			server.Log.Fatalf("restore replica: %v", err)
		}
	}

	rm := server.NewRoomManager(replica, cfg.DefaultRoom, cfg.Room)
	// 先预创建默认房间，便于快速试跑
	if _, err := rm.GetOrCreateRoom(context.Background(), cfg.DefaultRoom); err != nil {
		server.Log.Fatalf("create default room: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", rm.HandleWS)
	// 前后端分离：将 / 映射到 web 目录的静态资源
	mux.Handle("/", http.FileServer(http.Dir(cfg.WebDir)))
	// 管理与监控接口
	mux.HandleFunc("/admin/config", rm.HandleAdminConfig)
	mux.HandleFunc("/metrics", rm.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		server.Log.Infof("p2pio listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	rm.Stop()
}
