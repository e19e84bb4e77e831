/*
Package tunnel manages background port-forward processes keyed by role.

A Forwarder starts `kubectl port-forward` in a new session so the process is
not tied to the harness's terminal or to the stage that started it. The Table
holds at most one Handle per Role; Start on a role that already has a tunnel
stops the old process before launching the new one.

Every handle is mirrored to a state.Store. When a run dies before cleanup, the
next run's ReclaimLeaked finds those records and stops any pid that is still a
port-forward.

After an upgrade the pods behind a service are replaced and an existing
forward keeps pointing at the terminated pod, so callers restart the tunnels
of the upgraded role before verifying.
*/
package tunnel
