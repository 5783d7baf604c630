package containers

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	gridworkflow "github.com/gridci/gridci/pkg/workflow"
	"github.com/sirupsen/logrus"
)

// clickhousePingInterval is the delay between native-protocol ping attempts
const clickhousePingInterval = 2 * time.Second

// waitForClickHouse pings the service over the ClickHouse native protocol
// until it answers or the startup timeout elapses. A listening TCP port is
// not enough for ClickHouse: the server accepts connections before it is
// ready to serve queries.
func waitForClickHouse(ctx context.Context, log logrus.FieldLogger, svc *gridworkflow.Service, hostPort int) error {
	user := svc.Env["CLICKHOUSE_USER"]
	if user == "" {
		user = "default"
	}
	password := svc.Env["CLICKHOUSE_PASSWORD"]

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("127.0.0.1:%d", hostPort)},
		Auth: clickhouse.Auth{
			Username: user,
			Password: password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to open clickhouse connection: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.WithError(closeErr).Debug("Failed to close clickhouse probe connection")
		}
	}()

	deadline := time.Now().Add(startupTimeout)

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = conn.Ping(pingCtx)
		cancel()

		if err == nil {
			log.Debug("ClickHouse service answered native ping")
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("clickhouse not ready after %s: %w", startupTimeout, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(clickhousePingInterval):
		}
	}
}
