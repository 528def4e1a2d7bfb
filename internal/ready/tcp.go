package ready

import (
	"context"
	"net"
	"strconv"
	"time"
)

// TCP checks readiness by dialing a TCP connection.
type TCP struct{}

func (TCP) Check(ctx context.Context, host string, port int) error {
	d := net.Dialer{Timeout: 200 * time.Millisecond}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}
