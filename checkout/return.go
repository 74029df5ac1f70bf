package checkout

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// SessionParam is the query parameter the payment processor appends to the
// success URL.
const SessionParam = "session_id"

// ReturnListener is a loopback HTTP server that the checkout success URL
// redirects to. It captures the session reference from the redirect and hands
// it to whoever is waiting, then has no further job.
type ReturnListener struct {
	srv      *http.Server
	addr     string
	sessions chan string
}

// NewReturnListener creates a listener bound to addr, e.g. "localhost:8734".
func NewReturnListener(addr string) *ReturnListener {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	l := &ReturnListener{
		sessions: make(chan string, 1),
	}

	router.GET("/payment/return", func(c *gin.Context) {
		sessionID := c.Query(SessionParam)
		if sessionID == "" {
			c.String(http.StatusBadRequest, "missing %s", SessionParam)
			return
		}
		select {
		case l.sessions <- sessionID:
		default:
			// A session was already captured; the listener is one-shot.
		}
		c.String(http.StatusOK, "Payment received. You can return to the app.")
	})

	l.srv = &http.Server{Addr: addr, Handler: router}
	return l
}

// Start binds the address and begins serving in the background.
func (l *ReturnListener) Start() error {
	ln, err := net.Listen("tcp", l.srv.Addr)
	if err != nil {
		return err
	}
	l.addr = ln.Addr().String()
	go func() {
		log.Infof("Payment return listener on %s", l.addr)
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("Return listener failed: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address after Start.
func (l *ReturnListener) Addr() string {
	return l.addr
}

// Wait blocks until a session reference arrives or the context is done.
func (l *ReturnListener) Wait(ctx context.Context) (string, error) {
	select {
	case sessionID := <-l.sessions:
		return sessionID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Shutdown stops the listener gracefully.
func (l *ReturnListener) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return l.srv.Shutdown(shutdownCtx)
}
