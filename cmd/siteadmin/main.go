// cmd/siteadmin/main.go
//
// Operator CLI.
//
//	siteadmin schema                              print the SQL schema
//	siteadmin domain add <host> <config-id>       map a hostname to a tenant
//	siteadmin invite create <config-id>           mint a one-time signup code
//
// Configuration is the same as the server's, so SITECONF_* env vars and
// vault: references work here too.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanizio/siteconf/internal/logger"
)

func main() {
	logger.Bootstrap()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(openStore).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "siteadmin:", err)
		os.Exit(1)
	}
}
