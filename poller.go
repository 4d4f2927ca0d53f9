// Reactor registration is implemented per-platform:
//   - poller_linux.go (epoll)
//   - poller_darwin.go (kqueue)
//   - poller_windows.go (IOCP)
//
// Always call Unregister before closing a file descriptor, to prevent
// stale event delivery from fd recycling.
package loomrt
