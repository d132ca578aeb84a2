// File: cmd/h3dgram/ping.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/momentics/hioload-h3/protocol"
	"github.com/spf13/cobra"
)

func pingCmd() *cobra.Command {
	var (
		timeout time.Duration
		count   int
	)

	cmd := &cobra.Command{
		Use:   "ping ADDR [PAYLOAD]",
		Short: "Send DATA frames to a server and time the echoes",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := "ping"
			if len(args) > 1 {
				payload = args[1]
			}
			return runPing(cmd, args[0], []byte(payload), count, timeout)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 2*time.Second, "Reply timeout")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Frames to send")

	return cmd
}

func runPing(cmd *cobra.Command, addr string, payload []byte, count int, timeout time.Duration) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	frame := protocol.AppendFrame(nil, protocol.FrameData, payload)
	reply := make([]byte, 64*1024)
	for i := 0; i < count; i++ {
		start := time.Now()
		if _, err := conn.Write(frame); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(start.Add(timeout))
		n, err := conn.Read(reply)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if !bytes.Equal(reply[:n], frame) {
			return fmt.Errorf("frame %d: unexpected reply %x", i, reply[:n])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d bytes from %s: seq=%d time=%s\n", n, addr, i, time.Since(start).Round(time.Microsecond))
	}
	return nil
}
