package dispatcher

// The following seams are Non-goals per SPEC_FULL.md §6: spawning and
// supervising worker subprocesses, provisioning git worktrees, and
// reporting OS process activity are external to MASC's coordination core.
// They are named here only as the interfaces a host process may wire in
// (e.g. to answer a future worker_status-style tool), grounded on the
// teacher's WorkerCanceller/WorktreeInfoProvider/ProcessInfoProvider
// adapter seams in tools/collab/register.go. MASC ships no implementation
// of any of them.

// WorkerCanceller cancels a running worker instance by id.
type WorkerCanceller interface {
	Cancel(instanceID string) error
}

// WorktreeInfoProvider reports the git worktree backing a worker instance.
type WorktreeInfoProvider interface {
	WorktreeFor(instanceID string) (path, branch string, ok bool)
}

// ProcessInfoProvider reports OS-level activity for a worker instance, used
// to distinguish a busy worker from a truly dead one.
type ProcessInfoProvider interface {
	ProcessActive(instanceID string) bool
}
