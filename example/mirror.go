// Command mirror demonstrates the socket layer end to end: a display
// side writes framed instructions (including a nested stream carrying
// base64 image data) over an in-memory pipe while keep-alive is
// running, and a client side drains and prints every instruction it
// receives.
package main

import (
	"bytes"
	"io"
	"log/slog"
	"time"

	"github.com/remotefb/socket"
)

func display(s *socket.Socket) error {
	s.RequireKeepAlive()

	if err := s.WriteInstruction("size", "1024", "768"); err != nil {
		return err
	}

	// Carry a secondary stream over the same connection.
	nested, err := socket.Nest(s, 0)
	if err != nil {
		return err
	}

	if err := nested.WriteString("img"); err != nil {
		return err
	}
	if err := nested.Flush(); err != nil {
		return err
	}

	if err := nested.Close(); err != nil {
		return err
	}

	// Inline binary payload on the root socket.
	if err := s.WriteString("blob"); err != nil {
		return err
	}
	if err := s.WriteBase64([]byte{0xDE, 0xAD, 0xBE, 0xEF}); err != nil {
		return err
	}
	if err := s.FlushBase64(); err != nil {
		return err
	}
	if err := s.Flush(); err != nil {
		return err
	}

	return s.WriteInstruction("disconnect")
}

func client(s *socket.Socket) {
	for {
		ready, err := s.Poll(time.Second)
		if err != nil {
			slog.Error("poll failed", "error", err)
			return
		}
		if !ready {
			slog.Info("no traffic within timeout, disconnecting")
			return
		}

		if _, err := s.FillInput(); err != nil {
			if err == io.EOF {
				return
			}
			slog.Error("read failed", "error", err)
			return
		}

		// Hand complete instructions to the "parser": here we just
		// print everything up to the last terminator.
		window := s.Input()
		end := bytes.LastIndexByte(window, ';')
		if end < 0 {
			continue
		}

		for _, instruction := range bytes.SplitAfter(window[:end+1], []byte(";")) {
			if len(instruction) > 0 {
				slog.Info("instruction", "wire", string(instruction))
			}
		}
		s.ConsumeInput(end + 1)
	}
}

func main() {
	a, b := socket.NewPipe()

	out, err := socket.Open(a, socket.KeepAliveIntervalOption(200*time.Millisecond))
	if err != nil {
		slog.Error("failed to open display socket", "error", err)
		return
	}

	in, err := socket.Open(b)
	if err != nil {
		slog.Error("failed to open client socket", "error", err)
		return
	}

	go func() {
		defer out.Close()
		if err := display(out); err != nil {
			slog.Error("display failed", "error", err)
		}
		// Let a keep-alive interval or two pass before hanging up.
		time.Sleep(500 * time.Millisecond)
	}()

	client(in)
	in.Close()
}
