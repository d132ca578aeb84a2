// File: server/echo.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/hioload-h3/internal/logging"
	"github.com/momentics/hioload-h3/protocol"
	"github.com/rs/zerolog"
)

// EchoHandler returns DATA and HEADERS frames to their sender, answers the
// first SETTINGS frame with its own and sends GOAWAY on session failures.
type EchoHandler struct {
	Settings []protocol.Setting
	log      zerolog.Logger
}

// NewEchoHandler creates an EchoHandler advertising settings.
func NewEchoHandler(settings ...protocol.Setting) *EchoHandler {
	return &EchoHandler{Settings: settings, log: logging.For("echo")}
}

func (h *EchoHandler) OpenSession(s *Session) protocol.FrameListener {
	return &echoSession{h: h, sess: s}
}

func (h *EchoHandler) CloseSession(s *Session, cause error) {
	h.log.Debug().Err(cause).Stringer("peer", s.Peer()).Msg("session done")
}

type echoSession struct {
	h            *EchoHandler
	sess         *Session
	settingsSent bool
}

func (e *echoSession) send(frame []byte) {
	if err := e.sess.Send(frame); err != nil {
		e.h.log.Debug().Err(err).Stringer("peer", e.sess.Peer()).Msg("echo dropped")
	}
}

func (e *echoSession) OnData(_ uint64, f *protocol.DataFrame) {
	e.send(protocol.AppendFrame(nil, protocol.FrameData, f.Data))
}

func (e *echoSession) OnHeaders(_ uint64, f *protocol.HeadersFrame) {
	e.send(protocol.AppendFrame(nil, protocol.FrameHeaders, f.Block))
}

func (e *echoSession) OnSettings(*protocol.SettingsFrame) {
	if e.settingsSent {
		return
	}
	e.settingsSent = true
	e.send(protocol.AppendSettings(nil, e.h.Settings...))
}

func (e *echoSession) OnGoAway(f *protocol.GoAwayFrame) {
	e.h.log.Debug().Uint64("id", f.ID).Stringer("peer", e.sess.Peer()).Msg("peer going away")
	e.sess.Close(nil)
}

func (e *echoSession) OnSessionFailure(code protocol.ErrorCode, reason string) {
	e.h.log.Info().Stringer("code", code).Str("reason", reason).Stringer("peer", e.sess.Peer()).Msg("session failure")
	e.send(protocol.AppendGoAway(nil, 0))
}

func (e *echoSession) OnStreamFailure(streamID uint64, code protocol.ErrorCode, reason string) {
	e.h.log.Debug().Uint64("stream", streamID).Stringer("code", code).Str("reason", reason).Msg("stream failure")
}
