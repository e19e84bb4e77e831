/*
Package state persists harness state in a local BoltDB file.

The only state kept today is the tunnel table: every detached port-forward
process is recorded by role with its pid, so a run that crashed before its
cleanup can have its leaked tunnels reclaimed by the next clean.

	store, err := state.Open(".upgrade-harness.db")
	if err != nil {
		return err
	}
	defer store.Close()

Values are JSON encoded and keyed by tunnel role in the "tunnels" bucket.
*/
package state
