package datagram_test

import (
	"bytes"
	"errors"
	"io"
	"net/netip"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/momentics/hioload-h3/reactor"
	"github.com/momentics/hioload-h3/transport/datagram"
)

var peer = netip.MustParseAddrPort("192.0.2.10:5000")

func newEndPoint(t *testing.T) (*datagram.EndPoint, *fakeChannel, *fakeKey, *fakeDemux) {
	t.Helper()
	ch := &fakeChannel{}
	key := &fakeKey{}
	demux := newFakeDemux()
	return datagram.NewEndPoint(ch, demux, key), ch, key, demux
}

func encoded(t *testing.T, ap netip.AddrPort) []byte {
	t.Helper()
	b, err := datagram.AppendAddress(nil, ap)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestInterestCoalescing(t *testing.T) {
	ep, _, key, demux := newEndPoint(t)

	ep.NeedsFillInterest()
	if demux.submissions() != 1 {
		t.Fatalf("first request should submit, got %d", demux.submissions())
	}

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep.OnIncompleteFlush()
		}()
	}
	wg.Wait()

	if demux.submissions() != 1 {
		t.Fatalf("requests while pending must coalesce, got %d submissions", demux.submissions())
	}
	if ran := demux.runUpdates(); ran != 1 {
		t.Fatalf("ran %d updates", ran)
	}
	applied := key.appliedOps()
	if len(applied) != 1 || applied[0] != reactor.OpRead|reactor.OpWrite {
		t.Fatalf("applied %v, want one rw", applied)
	}
}

func TestRepeatedRequestForAppliedInterestIsNoop(t *testing.T) {
	ep, _, key, demux := newEndPoint(t)
	ep.NeedsFillInterest()
	demux.runUpdates()
	ep.NeedsFillInterest()
	if demux.submissions() != 1 {
		t.Fatalf("unchanged interest should not submit, got %d", demux.submissions())
	}
	if len(key.appliedOps()) != 1 {
		t.Fatalf("applied %v", key.appliedOps())
	}
}

func TestOnSelectedClassifiesTasks(t *testing.T) {
	cases := []struct {
		name  string
		ready reactor.Ops
		fill  reactor.InvocationType
		write bool
		want  reactor.InvocationType
	}{
		{"fill", reactor.OpRead, reactor.NonBlocking, false, reactor.NonBlocking},
		{"flush", reactor.OpWrite, reactor.Either, true, reactor.Either},
		{"both either+nonblocking", reactor.OpRead | reactor.OpWrite, reactor.Either, true, reactor.Either},
		{"both mismatched", reactor.OpRead | reactor.OpWrite, reactor.Blocking, true, reactor.Blocking},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ep, ch, key, demux := newEndPoint(t)
			var filled atomic.Bool
			if err := ep.FillInterested(datagram.NewCallback(tc.fill, func() { filled.Store(true) }, nil)); err != nil {
				t.Fatal(err)
			}
			var wrote atomic.Bool
			if tc.write {
				// no capacity: the write parks and asks for write interest
				writeType := reactor.NonBlocking
				if tc.ready == reactor.OpWrite {
					writeType = tc.fill
				}
				cb := datagram.NewCallback(writeType, func() { wrote.Store(true) }, nil)
				if err := ep.Write(cb, encoded(t, peer), []byte("hello")); err != nil {
					t.Fatal(err)
				}
			}
			demux.runUpdates()

			key.setReady(tc.ready)
			task := ep.OnSelected(demux.dispatch)
			if task == nil {
				t.Fatal("expected a task")
			}
			if got := task.InvocationType(); got != tc.want {
				t.Fatalf("invocation %s, want %s", got, tc.want)
			}
			ch.setCapacity(1)
			task.Run()
			if tc.ready.Has(reactor.OpRead) != filled.Load() {
				t.Fatalf("fill callback ran=%t", filled.Load())
			}
			if tc.write && !wrote.Load() {
				t.Fatal("write callback did not complete")
			}

			// the consumed ready bits are removed from the desired interest
			ep.UpdateKey(demux.dispatch)
			if key.Interest()&tc.ready != 0 {
				t.Fatalf("interest %s still holds ready %s", key.Interest(), tc.ready)
			}
		})
	}
}

func TestOnSelectedWithoutReadyOpsReturnsNil(t *testing.T) {
	ep, _, _, demux := newEndPoint(t)
	if task := ep.OnSelected(demux.dispatch); task != nil {
		t.Fatalf("unexpected task %v", task)
	}
}

func TestStaleKeyClosesEndPoint(t *testing.T) {
	ep, ch, key, demux := newEndPoint(t)
	key.Cancel()
	ep.NeedsFillInterest()
	demux.runUpdates()

	if ep.IsOpen() {
		t.Fatal("endpoint should close on cancelled key")
	}
	if !ch.isClosed() {
		t.Fatal("channel should be closed")
	}
	causes := demux.destroyedCauses()
	if len(causes) != 1 || !errors.Is(causes[0], reactor.ErrCancelledKey) {
		t.Fatalf("destroy causes %v", causes)
	}
}

func TestUnexpectedKeyFailureClosesEndPoint(t *testing.T) {
	ep, _, key, demux := newEndPoint(t)
	key.failWith = syscall.EINVAL
	ep.OnIncompleteFlush()
	demux.runUpdates()
	if ep.IsOpen() {
		t.Fatal("endpoint should close on key failure")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ep, _, key, demux := newEndPoint(t)
	var failed atomic.Value
	if err := ep.FillInterested(datagram.NewCallback(reactor.NonBlocking, nil, func(err error) { failed.Store(err) })); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep.Close(nil)
		}()
	}
	wg.Wait()

	if n := len(demux.destroyedCauses()); n != 1 {
		t.Fatalf("destroyed %d times", n)
	}
	if key.IsValid() {
		t.Fatal("key should be cancelled")
	}
	err, _ := failed.Load().(error)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("fill callback failure %v", err)
	}
	if n, err := ep.Fill(make([]byte, 64)); n != -1 || err != io.EOF {
		t.Fatalf("fill after close = %d, %v", n, err)
	}
}

func TestReplaceKey(t *testing.T) {
	ep, _, _, demux := newEndPoint(t)
	ep.NeedsFillInterest()
	demux.runUpdates()

	next := &fakeKey{interest: reactor.OpRead}
	ep.ReplaceKey(demux.dispatch, next)
	next.setReady(reactor.OpRead)
	if task := ep.OnSelected(demux.dispatch); task == nil {
		t.Fatal("replaced key should drive selection")
	}

	ep.Close(nil)
	late := &fakeKey{}
	ep.ReplaceKey(demux.dispatch, late)
	if late.IsValid() {
		t.Fatal("key handed to a closed endpoint must be cancelled")
	}
}

func TestFillWithoutDatagramLeavesBufferUntouched(t *testing.T) {
	ep, _, _, _ := newEndPoint(t)
	buf := bytes.Repeat([]byte{0xAB}, 64)
	n, err := ep.Fill(buf)
	if n != 0 || err != nil {
		t.Fatalf("fill = %d, %v", n, err)
	}
	if !bytes.Equal(buf, bytes.Repeat([]byte{0xAB}, 64)) {
		t.Fatal("buffer mutated")
	}
}

func TestFillPrefixesSender(t *testing.T) {
	ep, ch, _, _ := newEndPoint(t)
	ch.deliver(peer, []byte("payload"))
	buf := make([]byte, 64)
	n, err := ep.Fill(buf)
	if err != nil || n != len("payload") {
		t.Fatalf("fill = %d, %v", n, err)
	}
	from, err := datagram.Decode(buf)
	if err != nil || from != peer {
		t.Fatalf("prefix decodes to %v, %v", from, err)
	}
	if got := buf[datagram.EncodedLength : datagram.EncodedLength+n]; string(got) != "payload" {
		t.Fatalf("payload %q", got)
	}
}

func TestFillDropsSenderZone(t *testing.T) {
	ep, ch, _, _ := newEndPoint(t)
	ch.deliver(netip.MustParseAddrPort("[fe80::1%eth0]:4433"), []byte("z"))
	buf := make([]byte, 64)
	if n, err := ep.Fill(buf); err != nil || n != 1 {
		t.Fatalf("fill = %d, %v", n, err)
	}
	from, err := datagram.Decode(buf)
	if err != nil || from != netip.MustParseAddrPort("[fe80::1]:4433") {
		t.Fatalf("prefix decodes to %v, %v", from, err)
	}
}

func TestFillAfterShutdownInput(t *testing.T) {
	ep, ch, _, _ := newEndPoint(t)
	ch.deliver(peer, []byte("x"))
	ep.ShutdownInput()
	if n, err := ep.Fill(make([]byte, 64)); n != -1 || err != io.EOF {
		t.Fatalf("fill = %d, %v", n, err)
	}
}

func TestFillTransportErrorIsEOF(t *testing.T) {
	ep, ch, _, _ := newEndPoint(t)
	ch.recvErr = syscall.ECONNREFUSED
	_, err := ep.Fill(make([]byte, 64))
	if !errors.Is(err, io.EOF) || !errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatalf("fill error %v", err)
	}
}

func TestFlushStopsOnZeroSend(t *testing.T) {
	ep, ch, _, _ := newEndPoint(t)
	ch.setCapacity(1)
	bufs := [][]byte{encoded(t, peer), []byte("one"), []byte("two")}
	done, err := ep.Flush(bufs...)
	if err != nil || done {
		t.Fatalf("flush = %t, %v", done, err)
	}
	if len(bufs[0]) != 0 || len(bufs[1]) != 0 || string(bufs[2]) != "two" {
		t.Fatalf("buffers after flush %q", bufs)
	}
	out := ch.sentDatagrams()
	if len(out) != 1 || out[0].to != peer || string(out[0].payload) != "one" {
		t.Fatalf("sent %+v", out)
	}
}

func TestFlushDrainsAll(t *testing.T) {
	ep, ch, _, _ := newEndPoint(t)
	ch.setCapacity(8)
	done, err := ep.Flush(encoded(t, peer), []byte("a"), nil, []byte("b"))
	if err != nil || !done {
		t.Fatalf("flush = %t, %v", done, err)
	}
	if len(ch.sentDatagrams()) != 2 {
		t.Fatalf("sent %d datagrams", len(ch.sentDatagrams()))
	}
}

func TestFlushErrors(t *testing.T) {
	ep, ch, _, _ := newEndPoint(t)
	if _, err := ep.Flush([]byte{1, 2, 3}, []byte("x")); !errors.Is(err, datagram.ErrMalformedAddress) {
		t.Fatalf("malformed address: %v", err)
	}
	ch.sendErr = syscall.EHOSTUNREACH
	_, err := ep.Flush(encoded(t, peer), []byte("x"))
	var eof *datagram.EOFError
	if !errors.As(err, &eof) || !errors.Is(err, io.EOF) || !errors.Is(err, syscall.EHOSTUNREACH) {
		t.Fatalf("transport failure %v", err)
	}
}

func TestWriteResumesAfterWriteInterest(t *testing.T) {
	ep, ch, key, demux := newEndPoint(t)
	var done atomic.Int32
	cb := datagram.NewCallback(reactor.NonBlocking, func() { done.Add(1) }, nil)

	if err := ep.Write(cb, encoded(t, peer), []byte("first"), []byte("second")); err != nil {
		t.Fatal(err)
	}
	if !ep.WriteFlusher().IsPending() {
		t.Fatal("write should be pending")
	}
	if err := ep.Write(cb, encoded(t, peer), []byte("x")); !errors.Is(err, datagram.ErrWritePending) {
		t.Fatalf("second write: %v", err)
	}
	demux.runUpdates()
	if key.Interest() != reactor.OpWrite {
		t.Fatalf("interest %s", key.Interest())
	}

	ch.setCapacity(1)
	key.setReady(reactor.OpWrite)
	ep.OnSelected(demux.dispatch).Run()
	ep.UpdateKey(demux.dispatch)
	if done.Load() != 0 || !ep.WriteFlusher().IsPending() {
		t.Fatal("partial progress should stay pending")
	}
	demux.runUpdates()

	ch.setCapacity(1)
	ep.OnSelected(demux.dispatch).Run()
	if done.Load() != 1 {
		t.Fatal("write should complete")
	}
	out := ch.sentDatagrams()
	if len(out) != 2 || string(out[1].payload) != "second" || out[1].to != peer {
		t.Fatalf("sent %+v", out)
	}
}

func TestFillInterestRejectsSecondRegistration(t *testing.T) {
	ep, _, _, _ := newEndPoint(t)
	cb := datagram.NewCallback(reactor.NonBlocking, nil, nil)
	if err := ep.FillInterested(cb); err != nil {
		t.Fatal(err)
	}
	if err := ep.FillInterested(cb); !errors.Is(err, datagram.ErrReadPending) {
		t.Fatalf("second registration: %v", err)
	}
}

func TestRejectedTaskClosesEndPoint(t *testing.T) {
	ep, _, key, demux := newEndPoint(t)
	if err := ep.FillInterested(datagram.NewCallback(reactor.NonBlocking, nil, nil)); err != nil {
		t.Fatal(err)
	}
	key.setReady(reactor.OpRead)
	task := ep.OnSelected(demux.dispatch)
	closer, ok := task.(reactor.Closeable)
	if !ok {
		t.Fatalf("task %T is not closeable", task)
	}
	closer.Close()
	if ep.IsOpen() {
		t.Fatal("endpoint should be closed")
	}
}

func TestStringDumpsInterest(t *testing.T) {
	ep, _, _, demux := newEndPoint(t)
	ep.NeedsFillInterest()
	if s := ep.String(); !bytes.Contains([]byte(s), []byte("io=-/r")) {
		t.Fatalf("dump %q", s)
	}
	demux.runUpdates()
	if s := ep.String(); !bytes.Contains([]byte(s), []byte("io=r/r,kio=r")) {
		t.Fatalf("dump %q", s)
	}
}
