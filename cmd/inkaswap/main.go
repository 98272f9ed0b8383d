package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"InkaSwap-Provider/pkg/logger"
)

// main 是 inkaswap 命令行工具的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.Stdout).ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "inkaswap 运行失败: %v\n", err)
		os.Exit(1)
	}
}
