// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Incremental HTTP/3 frame parsing (RFC 9114 §7). Every frame is a
// variable-length integer type and length followed by the body. Bodies may
// arrive split across any number of buffers; each Parse call resumes where
// the previous one stopped and never consumes bytes past the frame boundary.
//
// Malformed framing that prevents finding the next frame is a session
// failure: buffered input is discarded and the parser stops. Problems local
// to one stream, such as an oversized DATA body, are stream failures and
// parsing continues with the next frame.
package protocol
