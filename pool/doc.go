// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer reuse for the datagram path: fixed-size receive buffers, pooled
// reply buffers and gather batches handed to endpoint writes.
package pool
