package kafkax

import (
	"context"
	"net"
	"strings"
	"testing"
)

func TestReadyCheck(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected error without brokers")
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	dead := closed.Addr().String()
	_ = closed.Close()

	if err := ReadyCheck([]string{dead, lis.Addr().String()})(context.Background()); err != nil {
		t.Fatalf("expected second broker to satisfy the check, got %v", err)
	}
	err = ReadyCheck([]string{dead})(context.Background())
	if err == nil || !strings.Contains(err.Error(), dead) {
		t.Fatalf("expected error naming %s, got %v", dead, err)
	}
}
