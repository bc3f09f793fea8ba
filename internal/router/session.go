package router

import (
	"oscgate/internal/events"
	"oscgate/internal/runtime"
	"oscgate/internal/transport"
)

// sessionTable covers job control, liveness and version queries.
// Replies go through sink so the pump remains the only writer to the
// peer.
func sessionTable(rt runtime.Runtime, sink events.Sink) Table {
	return Table{
		"/stop-all-jobs": func(string, transport.Args) error {
			return rt.StopJobs()
		},

		"/exit": func(string, transport.Args) error {
			return rt.Exit()
		},

		"/gui-heartbeat": func(clientID string, _ transport.Args) error {
			return rt.Heartbeat(clientID)
		},

		"/ping": func(_ string, args transport.Args) error {
			id, err := args.String(0)
			if err != nil {
				return err
			}
			sink.Push(events.Ack{ID: id})
			return nil
		},

		"/version": func(string, transport.Args) error {
			cur, latest := rt.CurrentVersion(), rt.ServerVersion()
			sink.Push(events.Version{
				Version:          cur.Name,
				VersionNum:       cur.Num,
				LatestVersion:    latest.Name,
				LatestVersionNum: latest.Num,
				LastChecked:      rt.LastUpdateCheck(),
			})
			return nil
		},
	}
}
