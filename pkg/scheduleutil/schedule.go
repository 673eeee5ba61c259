package scheduleutil

import "time"

// WaitGoSchedule sleeps momentarily so that other goroutines can process.
//
// (etcd rafthttp.waitSchedule)
func WaitGoSchedule() { time.Sleep(1 * time.Millisecond) }
