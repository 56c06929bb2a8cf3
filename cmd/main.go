package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remoting/internal/cmr"
	"remoting/internal/config"
	"remoting/internal/utils"
	"remoting/pkg"
)

type options struct {
	configPath string
	host       string
	port       int
	service    string
	interval   time.Duration
}

// parseFlags 解析命令行参数
func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "configs/default.yml", "配置文件路径")
	flag.StringVar(&o.host, "host", "127.0.0.1", "CMR 主机")
	flag.IntVar(&o.port, "port", 8080, "CMR 端口")
	flag.StringVar(&o.service, "service", cmr.ServerStatusService, "状态服务名称")
	flag.DurationVar(&o.interval, "interval", 10*time.Second, "探测间隔")
	flag.Parse()
	return o
}

// loadConfig 默认配置之上依次应用配置文件与环境变量，文件可以不存在
func loadConfig(path string, logger utils.Logger) (*config.Config, error) {
	manager := config.NewManager(logger)
	manager.AddProvider(&config.FileProvider{Path: path, Optional: true})
	manager.AddProvider(config.EnvProvider{})
	return manager.Load()
}

type closer interface {
	Close() error
}

// prober 分别从普通 goroutine 和特权事件循环调用状态服务
type prober struct {
	status cmr.ServerStatus
	loop   *pkg.Loop
	logger utils.Logger
}

func (p *prober) probe(ctx context.Context) error {
	st, err := p.status.GetStatus(ctx)
	if err != nil {
		p.logger.Error("GetStatus failed", utils.String("address", p.status.Address()), utils.ErrorField(err))
		return err
	}
	p.logger.Info("CMR status", utils.String("state", st.State), utils.String("version", st.Version))

	var alive bool
	if err := p.loop.Sync(ctx, func(ctx context.Context) {
		alive, err = p.status.IsAlive(ctx)
	}); err != nil {
		return err
	}
	if err != nil {
		p.logger.Error("IsAlive failed", utils.String("address", p.status.Address()), utils.ErrorField(err))
		return err
	}
	p.logger.Info("CMR liveness", utils.Bool("alive", alive))
	return nil
}

func main() {
	// 1. 解析命令行参数
	opts := parseFlags()

	// 2. 创建日志器
	logger := utils.DefaultLogger
	logger.Info("Starting CMR status probe")

	// 3. 加载配置
	cfg, err := loadConfig(opts.configPath, logger)
	if err != nil {
		logger.Error("Failed to load configuration", utils.ErrorField(err))
		os.Exit(1)
	}
	logger.Info("Configuration loaded", utils.String("configPath", opts.configPath))

	// 4. 启动特权事件循环
	loop := pkg.NewLoop()

	// 5. 初始化客户端
	client, err := pkg.NewClient(cfg, pkg.WithLoop(loop))
	if err != nil {
		logger.Error("Failed to create client", utils.ErrorField(err))
		loop.Close()
		os.Exit(1)
	}

	// 6. 构建状态服务代理
	desc := cmr.ServerStatusDescriptor()
	desc.ServiceName = opts.service
	status, err := pkg.Build(client, pkg.RemoteLocation{Host: opts.host, Port: opts.port}, desc, cmr.NewServerStatus)
	if err != nil {
		logger.Error("Failed to build status proxy", utils.ErrorField(err))
		shutdown(client, loop, logger)
		os.Exit(1)
	}
	logger.Info("Status proxy ready", utils.String("address", status.Address()))

	// 7. 周期探测
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, &prober{status: status, loop: loop, logger: logger}, opts.interval)
	}()

	// 8. 等待关闭信号
	waitForShutdown(logger)
	cancel()
	<-done
	shutdown(client, loop, logger)
}

// run 立即探测一次，之后按间隔探测直到 ctx 结束
func run(ctx context.Context, p *prober, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_ = p.probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// shutdown 实现优雅关闭逻辑
func shutdown(client closer, loop *pkg.Loop, logger utils.Logger) {
	logger.Info("Starting graceful shutdown...")

	if err := client.Close(); err != nil {
		logger.Error("Failed to close client", utils.ErrorField(err))
	} else {
		logger.Info("Client closed")
	}

	loop.Close()
	logger.Info("CMR status probe shutdown complete")
}

// waitForShutdown 监听系统信号
func waitForShutdown(logger utils.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	signal.Stop(sigChan)
	logger.Info("Received signal", utils.String("signal", sig.String()))
}
