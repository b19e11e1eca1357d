//go:build linux

package capture

import (
	"golang.org/x/sys/unix"
)

// shmSegment is a SysV shared-memory segment attached into this process and
// registered with the X server via the MIT-SHM extension, giving GetImage a
// zero-copy path instead of round-tripping pixel data over the socket.
//
// The caller must invoke remove() only after every party that needs the
// segment has attached: marking a segment IPC_RMID removes its id from the
// kernel namespace, and any later shmat (the X server's MIT-SHM Attach
// included) fails.
type shmSegment struct {
	id   int
	data []byte
}

func newShmSegment(size int) (*shmSegment, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|0600)
	if err != nil {
		return nil, errResource("x11_shm_create", "shmget failed", err)
	}
	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		// Nothing else will ever attach; reap the segment now.
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, errResource("x11_shm_attach", "shmat failed", err)
	}
	return &shmSegment{id: id, data: data}, nil
}

// remove marks the segment for destruction once the last attacher detaches,
// so it cannot leak even on abnormal exit.
func (s *shmSegment) remove() {
	_, _ = unix.SysvShmCtl(s.id, unix.IPC_RMID, nil)
}

func (s *shmSegment) bytes() []byte { return s.data }

func (s *shmSegment) size() int { return len(s.data) }

func (s *shmSegment) close() {
	_ = unix.SysvShmDetach(s.data)
}
