// Command demo starts an in-process kette server and walks a few
// requests through its middleware chain.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rhuss/kette/pkg/message"
	"github.com/rhuss/kette/pkg/server"
	"github.com/rhuss/kette/pkg/transport"
	transportfast "github.com/rhuss/kette/pkg/transport/fasthttp"
)

func main() {
	fmt.Println("=== kette middleware chain demo ===")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// 1. Assemble a server with a few units and a terminal handler
	srv, err := server.New(
		server.WithTransport(transportfast.New()),
		server.WithHost("127.0.0.1"),
		server.WithLogger(logger),
		server.WithMiddleware(
			transport.Recovery(),
			transport.RequestID(),
			trace("outer"),
			trace("inner"),
			greeter(),
		),
	)
	if err != nil {
		fmt.Printf("Building server FAILED: %v\n", err)
		return
	}
	if err := srv.Start(0); err != nil {
		fmt.Printf("Start FAILED: %v\n", err)
		return
	}
	base := srv.Scheme() + "://" + srv.Addr().String()
	fmt.Printf("[1] Listening on %s with %d units\n", base, srv.Dispatcher().Len())

	// 2. A request flows in through the units and back out in reverse
	fmt.Println("\n[2] GET /hello/kette:")
	show(base + "/hello/kette")

	// 3. A unit can short-circuit the chain with a StatusError
	fmt.Println("\n[3] GET /forbidden:")
	show(base + "/forbidden")

	// 4. Units can be added while serving; a panic is caught by Recovery
	srv.Dispatcher().AddMiddleware(transport.MiddlewareFunc(func(context.Context, *message.Request, transport.Handler) (*message.Response, error) {
		panic("unreachable unit")
	}))
	fmt.Println("\n[4] GET /panic after adding a panicking unit:")
	show(base + "/panic")

	// 5. Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Printf("\n[5] Shutdown FAILED: %v\n", err)
		return
	}
	fmt.Println("\n[5] Server shut down cleanly")
}

// trace appends its name to X-Trace on the way out.
func trace(name string) transport.Middleware {
	return transport.MiddlewareFunc(func(ctx context.Context, req *message.Request, next transport.Handler) (*message.Response, error) {
		resp, err := next.Handle(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.WithAddedHeader("X-Trace", name), nil
	})
}

// greeter answers /hello/{name}, rejects /forbidden and passes the rest on.
func greeter() transport.Middleware {
	return transport.MiddlewareFunc(func(ctx context.Context, req *message.Request, next transport.Handler) (*message.Response, error) {
		switch {
		case strings.HasPrefix(req.Path(), "/hello/"):
			name := strings.TrimPrefix(req.Path(), "/hello/")
			return message.Text(http.StatusOK, "hello, "+name+"\n"), nil
		case req.Path() == "/forbidden":
			return nil, message.NewStatusError(http.StatusForbidden, "forbidden", "not for you")
		}
		return next.Handle(ctx, req)
	})
}

func show(url string) {
	resp, err := http.Get(url)
	if err != nil {
		fmt.Printf("    request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("    Status:     %s\n", resp.Status)
	fmt.Printf("    Request-ID: %s\n", resp.Header.Get(transport.RequestIDHeader))
	fmt.Printf("    X-Trace:    %v\n", resp.Header.Values("X-Trace"))
	fmt.Printf("    Body:       %s\n", strings.TrimSpace(string(body)))
}
