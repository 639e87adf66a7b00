package bridge

import "golang.org/x/sys/unix"

// dup2 via dup3, which every linux architecture provides.
func dup2(oldfd, newfd int) error {
	return unix.Dup3(oldfd, newfd, 0)
}
