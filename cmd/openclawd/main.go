// openclawd forwards agent approval requests to messaging channels and
// routes the operator's decision back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ido2103/openclaw/internal/app"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(*cfgPath)
	if err := a.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "openclawd: %v\n", err)
		os.Exit(1)
	}
	sdNotifyReady()

	<-ctx.Done()
	stop()
	sdNotifyStopping()

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = a.Stop(sctx)
}
