// File: protocol/parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bytes"
	"fmt"

	"github.com/momentics/hioload-h3/control"
	"github.com/momentics/hioload-h3/internal/logging"
	"github.com/rs/zerolog"
)

// Limits bounds the memory a single frame body may claim.
type Limits struct {
	MaxDataBody     uint64
	MaxHeadersBody  uint64
	MaxSettingsBody uint64
	// EmptyFrameTypes lists extension frame types that must carry no body.
	EmptyFrameTypes []FrameType
}

// DefaultLimits returns conservative limits.
func DefaultLimits() Limits {
	return Limits{
		MaxDataBody:     1 << 20,
		MaxHeadersBody:  64 * 1024,
		MaxSettingsBody: 4096,
	}
}

// LimitsFromConfig converts the [limits] configuration section.
func LimitsFromConfig(cfg control.LimitsConfig) Limits {
	l := DefaultLimits()
	if cfg.MaxDataBody > 0 {
		l.MaxDataBody = cfg.MaxDataBody
	}
	if cfg.MaxHeadersBody > 0 {
		l.MaxHeadersBody = cfg.MaxHeadersBody
	}
	for _, t := range cfg.EmptyFrameTypes {
		l.EmptyFrameTypes = append(l.EmptyFrameTypes, FrameType(t))
	}
	return l
}

// Option configures a Parser.
type Option func(*Parser)

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(p *Parser) { p.limits = l }
}

// WithMetrics records frames and failures on m.
func WithMetrics(m *control.Metrics) Option {
	return func(p *Parser) { p.metrics = m }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Parser) { p.log = l }
}

type parserState int

const (
	stateHeader parserState = iota
	stateBody
)

// Parser drives a HeaderParser and the body parsers of one stream over
// successive buffers. Body parsers are created once and reused for every
// frame. A Parser is not safe for concurrent use.
type Parser struct {
	header   *HeaderParser
	listener FrameListener
	limits   Limits
	metrics  *control.Metrics
	log      zerolog.Logger

	session *session
	state   parserState
	current BodyParser
	parsers map[FrameType]BodyParser
	unknown BodyParser
}

// NewParser creates a parser for streamID delivering to listener.
func NewParser(streamID uint64, listener FrameListener, opts ...Option) *Parser {
	p := &Parser{
		header:   NewHeaderParser(streamID),
		listener: listener,
		limits:   DefaultLimits(),
		log:      logging.For("parser").With().Uint64("stream", streamID).Logger(),
		session:  &session{},
	}
	for _, opt := range opts {
		opt(p)
	}
	base := func() bodyParser {
		return bodyParser{
			header:   p.header,
			listener: listener,
			session:  p.session,
			log:      p.log,
			metrics:  p.metrics,
		}
	}
	unexpected := &unexpectedBodyParser{bodyParser: base()}
	p.parsers = map[FrameType]BodyParser{
		FrameData:           &dataBodyParser{bodyParser: base(), maxBody: p.limits.MaxDataBody},
		FrameHeaders:        &headersBodyParser{bodyParser: base(), maxBody: p.limits.MaxHeadersBody},
		FrameSettings:       &settingsBodyParser{bodyParser: base(), maxBody: p.limits.MaxSettingsBody},
		FrameGoAway:         &varintBodyParser{bodyParser: base(), deliver: deliverGoAway},
		FrameCancelPush:     &varintBodyParser{bodyParser: base()},
		FrameMaxPushID:      &varintBodyParser{bodyParser: base()},
		FramePushPromise:    unexpected,
		frameH2Priority:     unexpected,
		frameH2Ping:         unexpected,
		frameH2WindowUpdate: unexpected,
		frameH2Continuation: unexpected,
	}
	empty := &emptyBodyParser{bodyParser: base()}
	for _, t := range p.limits.EmptyFrameTypes {
		if _, known := p.parsers[t]; !known {
			p.parsers[t] = empty
		}
	}
	p.unknown = &skipBodyParser{bodyParser: base()}
	return p
}

// Parse consumes frames from buf. It returns Complete when buf is drained
// on a frame boundary, Incomplete when a frame needs more bytes, and Failed
// once a session failure occurred; afterwards all input is discarded.
// Stream failures are notified and parsing continues.
func (p *Parser) Parse(buf *bytes.Buffer) Result {
	for {
		if p.session.failed {
			buf.Reset()
			return Failed
		}
		switch p.state {
		case stateHeader:
			if buf.Len() == 0 {
				return Complete
			}
			if !p.header.Parse(buf) {
				return Incomplete
			}
			p.current = p.bodyParserFor(p.header.FrameType())
			p.current.reset()
			p.state = stateBody
		case stateBody:
			res := p.current.Parse(buf)
			if res == Incomplete {
				return Incomplete
			}
			if res == Complete {
				p.metrics.FrameParsed(p.header.FrameType().String())
			}
			p.header.Reset()
			p.state = stateHeader
		}
	}
}

// Failed reports whether a session failure stopped the parser.
func (p *Parser) Failed() bool { return p.session.failed }

// Err returns the session failure that stopped the parser as a *Failure,
// or nil while the parser is healthy.
func (p *Parser) Err() error {
	if p.session.failure == nil {
		return nil
	}
	return p.session.failure
}

// Envelope returns the envelope being parsed.
func (p *Parser) Envelope() Envelope { return p.header.Envelope() }

func (p *Parser) bodyParserFor(t FrameType) BodyParser {
	if bp, ok := p.parsers[t]; ok {
		return bp
	}
	return p.unknown
}

func describe(l FrameListener) string {
	return fmt.Sprintf("%T", l)
}
