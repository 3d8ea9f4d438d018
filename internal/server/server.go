// Package server implements the connection loop: accepting clients on the
// configured listeners, framing and dispatching one command per read, and
// appending successful mutating commands to the write-ahead log after the
// response has been sent.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apkaspell/bdb/internal/ctl"
	"github.com/apkaspell/bdb/internal/protocol"
)

// maxBufSz is the largest single read the connection loop attempts. One
// request is expected to arrive in one read, matching the system this was
// modeled on; a request spanning more than one TCP segment delivered across
// two reads is not reassembled.
const maxBufSz = 2048

// Server accepts connections on the local and/or network listeners
// configured on its controller and serves the command protocol over each.
type Server struct {
	ctl *ctl.Ctl
	log *logrus.Logger

	// mu guards every call into ctl: dispatch and WAL logging both take
	// it, but only across the non-blocking decode-dispatch-respond
	// region, never across a blocking stream read or write.
	mu sync.Mutex
	wg sync.WaitGroup
}

// New builds a Server around c, logging through log.
func New(c *ctl.Ctl, log *logrus.Logger) *Server {
	return &Server{ctl: c, log: log}
}

// Serve starts every listener this server's configuration enables and
// blocks until ctx is cancelled, at which point it stops accepting new
// connections and waits for in-flight connections to finish their current
// request before returning.
func (s *Server) Serve(ctx context.Context) error {
	cfg := s.ctl.Config()

	var listeners []net.Listener
	var cleanup []func()

	if cfg.ListenLocal {
		_ = os.Remove(cfg.SockAddr)
		ln, err := net.Listen("unix", cfg.SockAddr)
		if err != nil {
			return fmt.Errorf("server: listen local %s: %w", cfg.SockAddr, err)
		}
		listeners = append(listeners, ln)
		cleanup = append(cleanup, func() { _ = os.Remove(cfg.SockAddr) })
	}

	if cfg.ListenNetwork {
		ln, err := net.Listen("tcp", cfg.InetAddr)
		if err != nil {
			return fmt.Errorf("server: listen network %s: %w", cfg.InetAddr, err)
		}
		listeners = append(listeners, ln)
	}

	if len(listeners) == 0 {
		return errors.New("server: no listeners configured")
	}

	for _, ln := range listeners {
		s.wg.Add(1)
		go s.acceptLoop(ctx, ln)
	}

	<-ctx.Done()
	for _, ln := range listeners {
		_ = ln.Close()
	}
	s.wg.Wait()
	for _, fn := range cleanup {
		fn()
	}
	return nil
}

// acceptLoop accepts connections on ln until it is closed (which happens
// when ctx is cancelled, from Serve), serving each on its own goroutine.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	s.log.WithField("addr", ln.Addr()).Info("listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.log.WithField("addr", ln.Addr()).Info("listener stopped")
				return
			default:
				s.log.WithError(err).Warn("accept error")
				return
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// On shutdown, unblock the connection's pending read so it exits
			// once its current request has been answered.
			stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
			defer stop()
			s.handleConn(conn)
		}()
	}
}

// handleConn serves one connection: read a request, decode, dispatch,
// respond, and — only on a successful mutating write — append the request
// to the write-ahead log. It returns when the connection is closed or a
// framing/decode error makes it impossible to continue.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	log := s.log.WithField("remote", conn.RemoteAddr())
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("connection handler panicked, closing connection")
		}
	}()

	buf := make([]byte, maxBufSz)
	for {
		n, err := conn.Read(buf)
		if n == 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				log.WithError(err).Warn("error reading from client stream")
			} else {
				log.Info("client connection closed")
			}
			return
		}

		frameBytes := buf[:n]
		frame, err := protocol.ParseFrame(frameBytes)
		if err != nil {
			log.WithError(err).Warn("malformed frame")
			return
		}
		cmd, err := protocol.DecodeCmd(frame)
		if err != nil {
			log.WithError(err).Warn("unrecognized command")
			return
		}
		log.WithField("kind", cmd.Kind).Debug("dispatching command")

		resp := protocol.NewResponse()
		dispatchErr := s.dispatch(cmd, resp)
		if dispatchErr != nil {
			log.WithError(dispatchErr).Error("dispatch failed")
			return
		}

		if _, err := conn.Write(resp.Encode()); err != nil {
			log.WithError(err).Warn("error responding to client stream")
			return
		}

		s.postprocess(cmd, resp, frameBytes, log)
	}
}

// dispatch runs cmd against the shared controller under the server's mutex.
func (s *Server) dispatch(cmd protocol.Cmd, resp *protocol.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd.Kind.IsWrite() {
		return ctl.DispatchWrite(s.ctl, cmd, resp)
	}
	return ctl.DispatchRead(s.ctl, cmd, resp)
}

// postprocess appends frameBytes to the write-ahead log when resp reports
// success and cmd is a mutating command. Snapshot/replay/load commands are
// control operations and are never WAL-logged, matching §4.11 step 5.
func (s *Server) postprocess(cmd protocol.Cmd, resp *protocol.Response, frameBytes []byte, log *logrus.Entry) {
	if resp.Status() != protocol.StatusSuccess || !cmd.Kind.IsMutating() {
		return
	}
	s.mu.Lock()
	err := s.ctl.LogMutation(frameBytes)
	s.mu.Unlock()
	if err != nil {
		log.WithError(err).Error("failed to append to write-ahead log")
	}
}
