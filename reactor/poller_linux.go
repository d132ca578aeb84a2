//go:build linux
// +build linux

// File: reactor/poller_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) poller, level-triggered, with an eventfd(2) for wakeups.

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

type epollPoller struct {
	epfd   int
	wakeFd int
	raw    []unix.EpollEvent
}

func newPlatformPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wfd, &ev); err != nil {
		_ = unix.Close(wfd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wakeup: %w", err)
	}
	return &epollPoller{epfd: epfd, wakeFd: wfd}, nil
}

func toEpoll(ops Ops) uint32 {
	var ev uint32
	if ops&OpRead != 0 {
		ev |= unix.EPOLLIN
	}
	if ops&OpWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) add(fd int, ops Ops) error {
	ev := unix.EpollEvent{Events: toEpoll(ops), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) mod(fd int, ops Ops) error {
	ev := unix.EpollEvent{Events: toEpoll(ops), Fd: int32(fd)}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EBADF) {
		return ErrCancelledKey
	}
	return err
}

func (p *epollPoller) del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) wait(events []readyEvent, timeoutMs int) (int, error) {
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]
	n, err := unix.EpollWait(p.epfd, raw, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, errInterrupted
		}
		return 0, err
	}
	out := 0
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == p.wakeFd {
			p.drainWakeup()
			continue
		}
		var ops Ops
		if raw[i].Events&unix.EPOLLIN != 0 {
			ops |= OpRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			ops |= OpWrite
		}
		events[out] = readyEvent{
			fd:  fd,
			ops: ops,
			err: raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
		out++
	}
	return out, nil
}

func (p *epollPoller) clearError(fd int) {
	_, _ = unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
}

func (p *epollPoller) wake() error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, err := unix.Write(p.wakeFd, one[:])
	if errors.Is(err, unix.EAGAIN) {
		// counter saturated, a wakeup is already pending
		return nil
	}
	return err
}

func (p *epollPoller) drainWakeup() {
	var buf [8]byte
	_, _ = unix.Read(p.wakeFd, buf[:])
}

func (p *epollPoller) close() error {
	err := unix.Close(p.epfd)
	if cerr := unix.Close(p.wakeFd); err == nil {
		err = cerr
	}
	return err
}
